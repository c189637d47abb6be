// Package service orchestrates index builds: drift-driven workspace
// selection, asynchronous execution with progress reporting, cooperative
// cancellation, and cache invalidation on completion.
package service

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/standardbeagle/wfi/internal/catalog"
	"github.com/standardbeagle/wfi/internal/contentsearch"
	"github.com/standardbeagle/wfi/internal/debug"
	"github.com/standardbeagle/wfi/internal/errors"
	"github.com/standardbeagle/wfi/internal/rank"
	"github.com/standardbeagle/wfi/internal/scan"
	"github.com/standardbeagle/wfi/internal/store"
	"github.com/standardbeagle/wfi/internal/types"
)

// Progress milestones. Scanning maps to [0, scanDonePercent]; the finalize
// phase (acceleration index rebuild) ends at finalizeDonePercent and
// optimization completes at 100.
const (
	scanDonePercent     = 90
	finalizeDonePercent = 95
)

// BuildProgress is one progress update from a running build.
type BuildProgress struct {
	Percent   int
	Stage     string
	Workspace string
}

// BuildResult summarizes a finished build.
type BuildResult struct {
	Files             int64
	Folders           int64
	WorkspacesIndexed int
	WorkspacesSkipped int
	Cancelled         bool
}

// BuildHandle tracks one asynchronous build. Progress updates are dropped
// rather than blocking the build when the consumer lags.
type BuildHandle struct {
	progress chan BuildProgress
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.Mutex
	result BuildResult
	err    error
}

// Progress returns the progress stream. The channel closes when the build
// finishes.
func (h *BuildHandle) Progress() <-chan BuildProgress {
	return h.progress
}

// Cancel requests cooperative cancellation. Entries already written stay in
// the store; the result reports Cancelled.
func (h *BuildHandle) Cancel() {
	h.cancel()
}

// Join blocks until the build finishes and returns its result. Safe to call
// from multiple goroutines.
func (h *BuildHandle) Join() (BuildResult, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Done returns a channel closed when the build finishes.
func (h *BuildHandle) Done() <-chan struct{} {
	return h.done
}

func (h *BuildHandle) emit(p BuildProgress) {
	select {
	case h.progress <- p:
	default:
	}
}

func (h *BuildHandle) finish(result BuildResult, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.mu.Unlock()
	close(h.progress)
	close(h.done)
}

// IndexService is the facade over the store, pipeline and ranking engine.
// At most one build runs at a time; concurrent Build calls fail with
// ErrBuildInProgress, they are never queued.
type IndexService struct {
	store    *store.Store
	pipeline *scan.Pipeline
	engine   *rank.Engine
	content  *contentsearch.Engine

	mu       sync.Mutex
	building bool
}

// New creates an index service over an open store.
func New(st *store.Store) *IndexService {
	return &IndexService{
		store:    st,
		pipeline: scan.New(st, catalog.DefaultPolicy()),
		engine:   rank.NewEngine(st),
		content:  contentsearch.NewEngine(),
	}
}

// Store exposes the underlying store for read-side queries.
func (s *IndexService) Store() *store.Store {
	return s.store
}

// Complete runs ranked name completion against the current index.
// Completion never fails: store errors degrade to an empty result so an
// interactive caller is never blocked by index state.
func (s *IndexService) Complete(query string, mode rank.Mode, maxResults int) []types.FileEntry {
	results, err := s.engine.Complete(query, mode, maxResults)
	if err != nil {
		debug.Log("SERVICE", "completion degraded to empty result: %v\n", err)
		return nil
	}
	return results
}

// Stats returns index statistics.
func (s *IndexService) Stats() (types.IndexStats, error) {
	return s.store.Stats()
}

// SearchContent greps file contents under the given roots. Searches are
// independent of builds and individually cancellable through ctx.
func (s *IndexService) SearchContent(ctx context.Context, opts contentsearch.Options) (*contentsearch.Result, error) {
	return s.content.Search(ctx, opts)
}

// EnsureIndexFresh reports whether the index needs a build for the given
// workspace set: the stored set differs, or at least one workspace shows
// significant drift.
func (s *IndexService) EnsureIndexFresh(ctx context.Context, workspaces []types.Workspace) (bool, error) {
	paths := make([]string, len(workspaces))
	for i, ws := range workspaces {
		paths[i] = ws.Path
	}
	valid, err := s.store.ValidFor(paths)
	if err != nil {
		return false, err
	}
	if !valid {
		return true, nil
	}
	for _, ws := range workspaces {
		needs, err := s.pipeline.NeedsIndexing(ctx, ws)
		if err != nil {
			return false, err
		}
		if needs {
			return true, nil
		}
	}
	return false, nil
}

// Build starts an asynchronous index build over the given workspace set.
// When force is false, workspaces whose recorded state shows no significant
// drift are skipped; when the stored workspace set differs from the
// requested one the whole index is rebuilt. The returned handle reports
// progress and completion.
func (s *IndexService) Build(ctx context.Context, workspaces []types.Workspace, force bool) (*BuildHandle, error) {
	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		return nil, errors.ErrBuildInProgress
	}
	s.building = true
	s.mu.Unlock()

	buildCtx, cancel := context.WithCancel(ctx)
	handle := &BuildHandle{
		progress: make(chan BuildProgress, 64),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			s.building = false
			s.mu.Unlock()
		}()
		result, err := s.runBuild(buildCtx, handle, workspaces, force)
		// Even a cancelled build may have written entries.
		s.engine.InvalidateCache()
		handle.finish(result, err)
	}()

	return handle, nil
}

func (s *IndexService) runBuild(ctx context.Context, handle *BuildHandle, workspaces []types.Workspace, force bool) (BuildResult, error) {
	var result BuildResult

	handle.emit(BuildProgress{Percent: 0, Stage: "planning"})

	paths := make([]string, len(workspaces))
	for i, ws := range workspaces {
		paths[i] = ws.Path
	}
	valid, err := s.store.ValidFor(paths)
	if err != nil {
		return result, err
	}
	if !valid {
		debug.LogIndexing("workspace set changed, clearing index\n")
		if err := s.store.Clear(); err != nil {
			return result, err
		}
		force = true
	}

	var targets []types.Workspace
	for _, ws := range workspaces {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		if force {
			targets = append(targets, ws)
			continue
		}
		needs, err := s.pipeline.NeedsIndexing(ctx, ws)
		if err != nil {
			return result, err
		}
		if needs {
			targets = append(targets, ws)
		} else {
			result.WorkspacesSkipped++
		}
	}

	for i, ws := range targets {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}

		wsIndex := i
		files, folders, err := s.pipeline.IndexWorkspace(ctx, ws, func(p scan.Progress) {
			fraction := 0.0
			if p.Estimated > 0 {
				fraction = float64(p.Scanned) / float64(p.Estimated)
				if fraction > 1 {
					fraction = 1
				}
			}
			percent := int((float64(wsIndex) + fraction) / float64(len(targets)) * scanDonePercent)
			handle.emit(BuildProgress{Percent: percent, Stage: p.Message, Workspace: p.Workspace})
		})
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, nil
			}
			var idxErr *errors.IndexingError
			if stderrors.As(err, &idxErr) && idxErr.IsRecoverable() {
				debug.LogIndexing("skipping workspace %s: %v\n", ws.Name, err)
				result.WorkspacesSkipped++
				continue
			}
			return result, err
		}
		result.Files += files
		result.Folders += folders
		result.WorkspacesIndexed++
	}

	handle.emit(BuildProgress{Percent: scanDonePercent, Stage: "rebuilding search index"})
	if result.WorkspacesIndexed > 0 {
		if err := s.store.RebuildSearchIndex(); err != nil {
			return result, err
		}
	}

	handle.emit(BuildProgress{Percent: finalizeDonePercent, Stage: "optimizing"})
	if result.WorkspacesIndexed > 0 {
		if err := s.store.Optimize(); err != nil {
			return result, err
		}
	}

	handle.emit(BuildProgress{Percent: 100, Stage: "done"})
	return result, nil
}

// RemoveWorkspace deletes a workspace and its entries from the index and
// flushes completion caches.
func (s *IndexService) RemoveWorkspace(path string) error {
	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		return errors.ErrBuildInProgress
	}
	s.mu.Unlock()

	if err := s.store.DeleteWorkspace(path); err != nil {
		return err
	}
	s.engine.InvalidateCache()
	return nil
}
