package contentsearch

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/standardbeagle/wfi/internal/debug"
)

// Engine dispatches content searches to ripgrep when a binary is found on
// PATH, falling back to the internal scanner otherwise. Probing happens once
// per Engine.
type Engine struct {
	probeOnce     sync.Once
	rgPath        string
	forceInternal bool
}

// NewEngine creates an engine that prefers ripgrep.
func NewEngine() *Engine {
	return &Engine{}
}

// NewInternalEngine creates an engine that never spawns ripgrep.
func NewInternalEngine() *Engine {
	return &Engine{forceInternal: true}
}

func (e *Engine) ripgrepPath() string {
	e.probeOnce.Do(func() {
		path, err := exec.LookPath("rg")
		if err != nil {
			debug.LogSearch("ripgrep not found, using internal scanner: %v\n", err)
			return
		}
		e.rgPath = path
	})
	return e.rgPath
}

// Search runs one content search. Invalid options fail before any IO. A
// cancelled context yields the matches accumulated so far with Truncated
// set, not an error. The internal scanner serves only when no ripgrep
// binary is found; once ripgrep has been selected its failures surface to
// the caller rather than silently retrying with the slower path.
func (e *Engine) Search(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.normalize()

	var res *Result
	var err error
	if rg := e.ripgrepPath(); rg != "" && !e.forceInternal {
		res, err = searchRipgrep(ctx, rg, opts)
	} else {
		res, err = searchInternal(ctx, opts)
	}
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
