// Package scan implements the incremental indexing pipeline: walking
// workspace trees, converting entries, batching writes to the store, and
// deciding when an already-indexed workspace has drifted enough to warrant
// a rescan.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/wfi/internal/catalog"
	"github.com/standardbeagle/wfi/internal/debug"
	"github.com/standardbeagle/wfi/internal/errors"
	"github.com/standardbeagle/wfi/internal/store"
	"github.com/standardbeagle/wfi/internal/types"
)

// Progress describes the state of one workspace scan. Estimated is 0 until
// the pre-scan estimate completes and is a lower-bound heuristic, not an
// exact total.
type Progress struct {
	Workspace string
	Scanned   int
	Estimated int
	Message   string
}

// ProgressFunc receives scan progress. Callbacks run on the scanning
// goroutine; keep them cheap.
type ProgressFunc func(Progress)

// Pipeline walks workspaces and feeds the store.
type Pipeline struct {
	store  *store.Store
	policy catalog.Policy
}

// New creates a pipeline writing to st under the given inclusion policy.
func New(st *store.Store, policy catalog.Policy) *Pipeline {
	return &Pipeline{store: st, policy: policy}
}

// IndexWorkspace rescans one workspace from scratch: existing entries for
// the workspace are removed, then the tree is walked and entries are written
// in batches. Unreadable subtrees are skipped and logged; only a missing or
// unreadable root fails the scan. Cancellation is checked per walked entry
// and returns ctx.Err(); entries already flushed stay in the store.
func (p *Pipeline) IndexWorkspace(ctx context.Context, ws types.Workspace, progress ProgressFunc) (files, folders int64, err error) {
	info, err := os.Stat(ws.Path)
	if err != nil {
		// An absent root (unmounted drive, deleted checkout) should not
		// sink a multi-workspace build.
		return 0, 0, errors.NewIndexingError("scan workspace", err).
			WithWorkspace(ws.Name).WithRecoverable(true)
	}
	if !info.IsDir() {
		return 0, 0, errors.NewIndexingError("scan workspace", fmt.Errorf("not a directory: %s", ws.Path)).
			WithWorkspace(ws.Name).WithRecoverable(true)
	}

	if err := p.store.DeleteEntriesByWorkspace(ws.Name); err != nil {
		return 0, 0, err
	}

	report := func(scanned, estimated int, msg string) {
		if progress != nil {
			progress(Progress{Workspace: ws.Name, Scanned: scanned, Estimated: estimated, Message: msg})
		}
	}

	report(0, 0, "estimating")
	estimated := estimateEntryCount(ctx, ws.Path, types.LargeWorkspaceEntryCount)
	report(0, estimated, "scanning")

	batch := make([]types.FileEntry, 0, types.UpsertBatchSize)
	scanned := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.UpsertBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		report(scanned, estimated, "scanning")
		return nil
	}

	walkErr := filepath.WalkDir(ws.Path, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			if path == ws.Path {
				return walkErr
			}
			debug.LogIndexing("skipping unreadable entry: %v\n", errors.NewFileError("walk", path, walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == ws.Path {
			return nil
		}

		if d.IsDir() && catalog.SkipDir(d.Name()) {
			return filepath.SkipDir
		}

		entry, ok := p.makeEntry(ws, path, d)
		if !ok {
			return nil
		}
		if entry.Kind == types.KindFolder {
			folders++
		} else {
			files++
		}
		batch = append(batch, entry)
		scanned++
		if scanned%100 == 0 {
			report(scanned, estimated, "scanning")
		}

		if len(batch) >= types.UpsertBatchSize {
			return flush()
		}
		return nil
	})
	if walkErr != nil {
		if walkErr == context.Canceled || walkErr == context.DeadlineExceeded {
			return files, folders, walkErr
		}
		return files, folders, errors.NewIndexingError("scan workspace", walkErr).WithWorkspace(ws.Name)
	}

	if err := flush(); err != nil {
		return files, folders, err
	}

	rec := types.WorkspaceRecord{
		Path:        ws.Path,
		Name:        ws.Name,
		FileCount:   files,
		FolderCount: folders,
		LastIndexed: float64(time.Now().UnixNano()) / 1e9,
	}
	if err := p.store.PutWorkspace(rec); err != nil {
		return files, folders, err
	}

	report(scanned, estimated, "done")
	debug.LogIndexing("indexed workspace %s: %d files, %d folders\n", ws.Name, files, folders)
	return files, folders, nil
}

// makeEntry converts one walked entry, applying the inclusion policy.
func (p *Pipeline) makeEntry(ws types.Workspace, path string, d fs.DirEntry) (types.FileEntry, bool) {
	rel, err := filepath.Rel(ws.Path, path)
	if err != nil {
		return types.FileEntry{}, false
	}
	rel = filepath.ToSlash(rel)
	name := d.Name()

	if d.IsDir() {
		info, err := d.Info()
		var modified float64
		if err == nil {
			modified = float64(info.ModTime().UnixNano()) / 1e9
		}
		return types.FileEntry{
			Name:         name,
			Path:         path,
			RelativePath: rel,
			Workspace:    ws.Name,
			Kind:         types.KindFolder,
			ModifiedTime: modified,
			PathHash:     catalog.PathHash(path),
			Priority:     catalog.FolderPriority,
		}, true
	}

	info, err := d.Info()
	if err != nil {
		debug.LogIndexing("stat failed for %s: %v\n", path, err)
		return types.FileEntry{}, false
	}

	ext := catalog.NormalizeExtension(name)
	if !p.policy.IncludeFile(name, ext, info.Size()) {
		return types.FileEntry{}, false
	}

	return types.FileEntry{
		Name:         name,
		Path:         path,
		RelativePath: rel,
		Workspace:    ws.Name,
		Kind:         types.KindFile,
		Size:         info.Size(),
		ModifiedTime: float64(info.ModTime().UnixNano()) / 1e9,
		Extension:    ext,
		PathHash:     catalog.PathHash(path),
		Priority:     catalog.ExtensionPriority(ext),
	}, true
}

// NeedsIndexing decides whether an already-recorded workspace should be
// rescanned. Workspaces above the large-workspace threshold are skipped
// outright; otherwise a capped sample walk estimates the current entry count
// and a rescan triggers only when the drift exceeds both the relative and
// absolute thresholds.
func (p *Pipeline) NeedsIndexing(ctx context.Context, ws types.Workspace) (bool, error) {
	rec, ok, err := p.store.WorkspaceByPath(ws.Path)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	recorded := rec.EntryCount()
	if recorded > types.LargeWorkspaceEntryCount {
		debug.LogIndexing("workspace %s has %d recorded entries, skipping drift check\n", ws.Name, recorded)
		return false, nil
	}

	limit := int(2 * recorded)
	if limit < 1000 {
		limit = 1000
	}
	estimate := int64(estimateEntryCount(ctx, ws.Path, limit))

	drift := estimate - recorded
	if drift < 0 {
		drift = -drift
	}
	threshold := int64(types.DriftRatio * float64(recorded))
	if threshold < types.DriftMinEntries {
		threshold = types.DriftMinEntries
	}

	debug.LogIndexing("drift check for %s: recorded=%d estimate=%d threshold=%d\n",
		ws.Name, recorded, estimate, threshold)
	return drift > threshold, nil
}

// estimateEntryCount walks the tree counting entries, pruning the same
// directories a real scan would. A limit of 0 means unbounded; otherwise the
// walk stops once limit entries have been seen, so the result is a lower
// bound for large trees. Cancellation stops the walk and returns the count
// so far.
func estimateEntryCount(ctx context.Context, root string, limit int) int {
	count := 0
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if d.IsDir() && catalog.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		count++
		if limit > 0 && count >= limit {
			return fs.SkipAll
		}
		return nil
	})
	return count
}
