package types

import "time"

// Index limits and defaults shared across packages.
const (
	// MaxIndexableFileSize is the hard cap for a single indexed file (100 MiB).
	// Larger files are skipped during a scan.
	MaxIndexableFileSize = 100 * 1024 * 1024

	// UpsertBatchSize bounds the number of entries written per store
	// transaction during a workspace scan.
	UpsertBatchSize = 1000

	// DefaultMaxCompletionResults caps interactive name-completion results.
	DefaultMaxCompletionResults = 30

	// LargeWorkspaceEntryCount is the threshold above which the drift check
	// skips an already-indexed workspace entirely.
	LargeWorkspaceEntryCount = 50000

	// DriftRatio and DriftMinEntries control when a sampled file count is
	// considered "changed enough" to trigger a re-index.
	DriftRatio      = 0.30
	DriftMinEntries = 50
)

// Kind distinguishes file entries from folder entries.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

// String returns the storage representation of the kind.
func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// ParseKind converts a storage representation back to a Kind.
func ParseKind(s string) Kind {
	if s == "folder" {
		return KindFolder
	}
	return KindFile
}

// FileEntry is one indexed file or folder.
type FileEntry struct {
	Name         string  // base name
	Path         string  // absolute, canonical path
	RelativePath string  // workspace-relative, forward-slash separated
	Workspace    string  // workspace display name
	Kind         Kind    // file or folder
	Size         int64   // bytes, 0 for folders
	ModifiedTime float64 // seconds since epoch
	Extension    string  // lower-cased with leading dot, empty for folders
	PathHash     string  // derived from Path, primary key in the store
	Priority     int     // denormalized extension priority
}

// ModTime returns the entry's modification time as a time.Time.
func (e FileEntry) ModTime() time.Time {
	sec := int64(e.ModifiedTime)
	nsec := int64((e.ModifiedTime - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Workspace identifies one user-selected root directory to index.
type Workspace struct {
	Name string
	Path string
}

// WorkspaceRecord is the persisted state of one indexed workspace.
type WorkspaceRecord struct {
	Path        string
	Name        string
	FileCount   int64
	FolderCount int64
	LastIndexed float64 // seconds since epoch
}

// EntryCount returns the total number of entries recorded for the workspace.
func (r WorkspaceRecord) EntryCount() int64 {
	return r.FileCount + r.FolderCount
}

// IndexStats summarizes the contents of the index store.
type IndexStats struct {
	TotalEntries int64
	Files        int64
	Folders      int64
	Workspaces   int64
	Extensions   int64
	LastUpdated  float64 // seconds since epoch, 0 when never indexed
}
