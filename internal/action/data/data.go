// Package data provides the builtin data actions: named variables, text
// manipulation, calculation, JSON querying, Lua scripts, files and dates.
package data

import (
	"time"

	"github.com/tombee/stepflow/internal/jq"
	"github.com/tombee/stepflow/pkg/workflow"
)

const category = "data"

// Module ids of the data actions.
const (
	VariableCreateID = "stepflow.data.variable.create"
	VariableGetID    = "stepflow.data.variable.get"
	VariableModifyID = "stepflow.data.variable.modify"
	TextSplitID      = "stepflow.data.text.split"
	TextReplaceID    = "stepflow.data.text.replace"
	TextExtractID    = "stepflow.data.text.extract"
	TextJoinID       = "stepflow.data.text.join"
	CalculateID      = "stepflow.data.calculate"
	JQID             = "stepflow.data.jq"
	JSONPathID       = "stepflow.data.json_path"
	LuaID            = "stepflow.data.lua"
	UUIDID           = "stepflow.data.uuid"
	FileID           = "stepflow.data.file"
	DateNowID        = "stepflow.data.date.now"
)

// Options configures the data actions.
type Options struct {
	// JQTimeout bounds jq queries; zero uses the jq default
	JQTimeout time.Duration

	// Now is the clock used by date.now; nil uses time.Now
	Now func() time.Time
}

// Actions returns every data action.
func Actions(opts Options) []workflow.Action {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return []workflow.Action{
		newVariableCreate(), newVariableGet(), newVariableModify(),
		newTextSplit(), newTextReplace(), newTextExtract(), newTextJoin(),
		newCalculate(),
		newJQ(jq.NewExecutor(opts.JQTimeout, 0)),
		newJSONPath(),
		newLua(),
		newUUID(),
		newFile(),
		newDateNow(now),
	}
}
