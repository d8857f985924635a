package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cversek/macf/internal/env"
	"github.com/cversek/macf/internal/events"
	"github.com/cversek/macf/internal/manifest"
	"github.com/cversek/macf/internal/searchd"
	"github.com/cversek/macf/internal/tasks"
)

// Budget is the nominal per-runner time budget (§5): runners must cancel
// any outbound subprocess/socket call that would exceed it rather than
// block the agent's turn.
const Budget = 250 * time.Millisecond

// Context bundles everything a runner needs. It is built fresh per
// invocation from an explicit Environment rather than any global state,
// per the design note against module-global overrides.
type Context struct {
	Env      *env.Environment
	Events   *events.Store
	Tasks    *tasks.Store
	Manifest manifest.Manifest
	Search   *searchd.Client

	// Deadline is Budget after construction; runners doing outbound I/O
	// should derive a context.Context from it.
	Deadline time.Time
}

// NewContext builds a runner Context for one invocation.
func NewContext(e *env.Environment, ev *events.Store, ts *tasks.Store, m manifest.Manifest) *Context {
	return &Context{Env: e, Events: ev, Tasks: ts, Manifest: m, Search: searchd.NewClient(""), Deadline: time.Now().Add(Budget)}
}

// budgetCtx returns a context.Context bounded by the remaining budget.
func (c *Context) budgetCtx() (context.Context, context.CancelFunc) {
	return context.WithDeadline(context.Background(), c.Deadline)
}

// RunnerFunc is the shape every hook handler implements.
type RunnerFunc func(c *Context, in Input) Output

// Run decodes stdin, invokes fn under panic recovery, and encodes the
// result to stdout. Per §4.6/§7, a runner must NEVER let an error or
// panic escape to the host: on any failure it still emits
// {continue:true} with a systemMessage describing the problem.
func Run(c *Context, stdin io.Reader, stdout io.Writer, fn RunnerFunc) {
	out := runSafely(c, stdin, fn)
	enc := json.NewEncoder(stdout)
	if err := enc.Encode(out); err != nil {
		slog.Error("hook: failed to encode output", "error", err)
	}
}

func runSafely(c *Context, stdin io.Reader, fn RunnerFunc) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			if c.Events != nil {
				c.Events.Append("hook_error", map[string]any{
					"error": fmt.Sprintf("%v", r),
				}, nil)
			}
			out = Output{Continue: true, SystemMessage: fmt.Sprintf("macf hook error (recovered): %v", r)}
		}
	}()

	var in Input
	if err := json.NewDecoder(stdin).Decode(&in); err != nil {
		return Output{Continue: true, SystemMessage: "macf hook: could not parse stdin, continuing"}
	}
	return fn(c, in)
}
