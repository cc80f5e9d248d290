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
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow"
)

// progressInterval is the minimum gap between two printed progress lines.
const progressInterval = 100 * time.Millisecond

// progressPrinter writes step progress to the terminal. Progress lines are
// throttled; retries are always printed.
type progressPrinter struct {
	w       io.Writer
	prog    *workflow.Program
	limiter *rate.Limiter

	mu sync.Mutex
}

func newProgressPrinter(w io.Writer, prog *workflow.Program) *progressPrinter {
	return &progressPrinter{
		w:       w,
		prog:    prog,
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
	}
}

func (p *progressPrinter) handle(_ context.Context, ev *workflow.Event) error {
	if ev.ProgramID != p.prog.ID {
		return nil
	}
	step := fmt.Sprintf("step %d", ev.StepIndex)
	if ev.StepIndex >= 0 && ev.StepIndex < len(p.prog.Steps) {
		step = p.prog.Steps[ev.StepIndex].ID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case workflow.EventStepRetry:
		fmt.Fprintln(p.w, shared.RenderWarn(fmt.Sprintf("%s: %s", step, ev.Message)))
	case workflow.EventStepProgress:
		if p.limiter.Allow() {
			fmt.Fprintln(p.w, shared.Muted.Render(fmt.Sprintf("  %s %s: %s", shared.SymbolInfo, step, ev.Message)))
		}
	}
	return nil
}
