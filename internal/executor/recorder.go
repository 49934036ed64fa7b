package executor

import (
	"context"
	"sync"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Recorder is a Runner that records invocations instead of starting
// processes. It backs dry runs and tests.
type Recorder struct {
	mu    sync.Mutex
	calls []Invocation

	// Respond, when set, produces the result for an invocation.
	Respond func(inv *Invocation) (*Result, error)
}

// Run implements Runner.
func (r *Recorder) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, *inv)
	respond := r.Respond
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, deckerr.ProcessCancelled(err)
	}
	if respond != nil {
		return respond(inv)
	}
	res := &Result{}
	empty := ""
	if captured(inv.Stdout) {
		res.Stdout = &empty
	}
	if captured(inv.Stderr) {
		res.Stderr = &empty
	}
	return res, nil
}

// Calls returns the recorded invocations in launch order.
func (r *Recorder) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.calls))
	copy(out, r.calls)
	return out
}

func captured(t types.StreamTarget) bool {
	return t.IsFile() || t.Mode != types.StreamInherit
}
