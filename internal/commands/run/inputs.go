// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package run

import (
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/pkg/workflow"
)

// triggerData builds the data a run starts with. Explicit data replaces
// the data configured on the program's trigger; --data entries override
// keys from --data-file.
func triggerData(prog *workflow.Program, opts options, stdin io.Reader) (map[string]any, error) {
	if len(opts.data) == 0 && opts.dataFile == "" {
		return maps.Clone(prog.Trigger.Data()), nil
	}

	data := make(map[string]any)
	if opts.dataFile != "" {
		fromFile, err := loadDataFile(opts.dataFile, stdin)
		if err != nil {
			return nil, err
		}
		maps.Copy(data, fromFile)
	}
	for _, arg := range opts.data {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data format %q (expected key=value)", arg)
		}
		data[key] = val
	}
	return data, nil
}

func loadDataFile(path string, stdin io.Reader) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("data file must contain an object: %w", err)
	}
	return data, nil
}
