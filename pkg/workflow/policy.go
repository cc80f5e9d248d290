package workflow

import (
	"strings"
	"time"

	"github.com/tombee/stepflow/pkg/value"
)

// Reserved step parameters that configure failure handling.
const (
	ParamErrorPolicy   = "__error_policy"
	ParamRetryCount    = "__retry_count"
	ParamRetryInterval = "__retry_interval"
)

// ErrorPolicy selects what happens when a step fails.
type ErrorPolicy string

const (
	// PolicyStop fails the run.
	PolicyStop ErrorPolicy = "stop"
	// PolicySkip records the failure as the step's outputs and continues.
	PolicySkip ErrorPolicy = "skip"
	// PolicyRetry re-runs the step, then fails the run.
	PolicyRetry ErrorPolicy = "retry"
)

// Default retry settings when neither the step nor the executor sets them.
const (
	DefaultRetryCount    = 3
	DefaultRetryInterval = time.Second
)

// Policy is the failure handling of one step.
type Policy struct {
	Mode          ErrorPolicy
	RetryCount    int
	RetryInterval time.Duration
}

// IsPolicyParameter reports whether key is one of the reserved policy keys.
func IsPolicyParameter(key string) bool {
	switch key {
	case ParamErrorPolicy, ParamRetryCount, ParamRetryInterval:
		return true
	}
	return false
}

// ParsePolicy reads the policy keys of a step. Unknown modes fall back to
// stop; missing or invalid retry settings take the given defaults.
func ParsePolicy(params map[string]any, defaultCount int, defaultInterval time.Duration) Policy {
	p := Policy{Mode: PolicyStop, RetryCount: defaultCount, RetryInterval: defaultInterval}

	if raw, ok := params[ParamErrorPolicy]; ok {
		switch mode := ErrorPolicy(strings.ToLower(value.From(raw).AsString())); mode {
		case PolicySkip, PolicyRetry:
			p.Mode = mode
		}
	}
	if raw, ok := params[ParamRetryCount]; ok {
		if n, ok := value.From(raw).AsNumber(); ok && n >= 0 {
			p.RetryCount = int(n)
		}
	}
	if raw, ok := params[ParamRetryInterval]; ok {
		if ms, ok := value.From(raw).AsNumber(); ok && ms >= 0 {
			p.RetryInterval = time.Duration(ms) * time.Millisecond
		}
	}
	return p
}

// staticParameters copies params without the policy keys.
func staticParameters(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if !IsPolicyParameter(k) {
			out[k] = v
		}
	}
	return out
}
