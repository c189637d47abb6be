package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/wfi/internal/catalog"
	"github.com/standardbeagle/wfi/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "file_index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEntry(name, relPath, workspace string, kind types.Kind) types.FileEntry {
	abs := filepath.Join("/work", workspace, filepath.FromSlash(relPath))
	ext := ""
	priority := catalog.FolderPriority
	if kind == types.KindFile {
		ext = catalog.NormalizeExtension(name)
		priority = catalog.ExtensionPriority(ext)
	}
	return types.FileEntry{
		Name:         name,
		Path:         abs,
		RelativePath: relPath,
		Workspace:    workspace,
		Kind:         kind,
		Size:         1024,
		ModifiedTime: float64(time.Now().Unix()),
		Extension:    ext,
		PathHash:     catalog.PathHash(abs),
		Priority:     priority,
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "file_index.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestUpsertBatchReplacesByPath(t *testing.T) {
	s := openTestStore(t)

	entry := makeEntry("main.go", "src/main.go", "proj", types.KindFile)
	require.NoError(t, s.UpsertBatch([]types.FileEntry{entry}))

	// Same path again with different size must replace, not duplicate.
	entry.Size = 4096
	require.NoError(t, s.UpsertBatch([]types.FileEntry{entry}))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)

	results, err := s.SearchByPrefix("main", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(4096), results[0].Size)
}

func TestSearchByPrefix(t *testing.T) {
	s := openTestStore(t)

	entries := []types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
		makeEntry("main_test.go", "src/main_test.go", "proj", types.KindFile),
		makeEntry("util.py", "tools/util.py", "proj", types.KindFile),
		makeEntry("src", "src", "proj", types.KindFolder),
	}
	require.NoError(t, s.UpsertBatch(entries))

	results, err := s.SearchByPrefix("main", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.Name, "main")
	}

	// relative path matches count too
	results, err = s.SearchByPrefix("tools", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "util.py", results[0].Name)
}

func TestSearchByPrefixRespectsLimit(t *testing.T) {
	s := openTestStore(t)

	var entries []types.FileEntry
	for i := 0; i < 20; i++ {
		name := "handler" + string(rune('a'+i)) + ".go"
		entries = append(entries, makeEntry(name, "src/"+name, "proj", types.KindFile))
	}
	require.NoError(t, s.UpsertBatch(entries))

	results, err := s.SearchByPrefix("handler", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestSearchByPrefixMonotonicity(t *testing.T) {
	s := openTestStore(t)

	entries := []types.FileEntry{
		makeEntry("parser.go", "src/parser.go", "proj", types.KindFile),
		makeEntry("parse.go", "src/parse.go", "proj", types.KindFile),
		makeEntry("part.md", "docs/part.md", "proj", types.KindFile),
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
	}
	require.NoError(t, s.UpsertBatch(entries))

	// every result for the extended query is a candidate for its prefix
	broad, err := s.SearchByPrefix("par", 100)
	require.NoError(t, err)
	narrow, err := s.SearchByPrefix("pars", 100)
	require.NoError(t, err)
	require.NotEmpty(t, narrow)

	broadPaths := make(map[string]bool)
	for _, e := range broad {
		broadPaths[e.Path] = true
	}
	for _, e := range narrow {
		assert.True(t, broadPaths[e.Path], "%s missing from broader query", e.Path)
	}
}

func TestSearchByPrefixEmptyQuery(t *testing.T) {
	s := openTestStore(t)

	results, err := s.SearchByPrefix("", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchFuzzyDegradesOnMetacharacters(t *testing.T) {
	s := openTestStore(t)

	entry := makeEntry("config.json", "config.json", "proj", types.KindFile)
	require.NoError(t, s.UpsertBatch([]types.FileEntry{entry}))

	// Queries with FTS metacharacters must not error; substring search
	// still finds the entry.
	results, err := s.SearchFuzzy("config.js", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "config.json", results[0].Name)

	results, err = s.SearchFuzzy(`weird"quote`, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchFuzzyNoDuplicates(t *testing.T) {
	s := openTestStore(t)

	entries := []types.FileEntry{
		makeEntry("parser.go", "src/parser.go", "proj", types.KindFile),
		makeEntry("parser_test.go", "src/parser_test.go", "proj", types.KindFile),
	}
	require.NoError(t, s.UpsertBatch(entries))

	results, err := s.SearchFuzzy("parser", 10)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, r := range results {
		assert.False(t, seen[r.Path], "duplicate path %s", r.Path)
		seen[r.Path] = true
	}
	assert.Len(t, results, 2)
}

func TestAllEntriesFilters(t *testing.T) {
	s := openTestStore(t)

	entries := []types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
		makeEntry("util.py", "tools/util.py", "proj", types.KindFile),
		makeEntry("src", "src", "proj", types.KindFolder),
	}
	require.NoError(t, s.UpsertBatch(entries))

	all, err := s.AllEntries(nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// folders first
	assert.Equal(t, types.KindFolder, all[0].Kind)

	folder := types.KindFolder
	folders, err := s.AllEntries(&folder, nil)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "src", folders[0].Name)

	goFiles, err := s.AllEntries(nil, []string{".go"})
	require.NoError(t, err)
	require.Len(t, goFiles, 1)
	assert.Equal(t, "main.go", goFiles[0].Name)
}

func TestWorkspaceRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := types.WorkspaceRecord{
		Path:        "/work/proj",
		Name:        "proj",
		FileCount:   10,
		FolderCount: 3,
		LastIndexed: float64(time.Now().Unix()),
	}
	require.NoError(t, s.PutWorkspace(rec))

	got, ok, err := s.WorkspaceByPath("/work/proj")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok, err = s.WorkspaceByPath("/work/other")
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := s.Workspaces()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestValidForExactSetEquality(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{Path: "/work/a", Name: "a"}))
	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{Path: "/work/b", Name: "b"}))

	ok, err := s.ValidFor([]string{"/work/a", "/work/b"})
	require.NoError(t, err)
	assert.True(t, ok)

	// order-independent
	ok, err = s.ValidFor([]string{"/work/b", "/work/a"})
	require.NoError(t, err)
	assert.True(t, ok)

	// superset fails
	ok, err = s.ValidFor([]string{"/work/a", "/work/b", "/work/c"})
	require.NoError(t, err)
	assert.False(t, ok)

	// subset fails
	ok, err = s.ValidFor([]string{"/work/a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteWorkspace(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBatch([]types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
		makeEntry("other.go", "other.go", "second", types.KindFile),
	}))
	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{Path: "/work/proj", Name: "proj"}))
	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{Path: "/work/second", Name: "second"}))

	require.NoError(t, s.DeleteWorkspace("/work/proj"))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.Workspaces)

	// deleting an unknown workspace is a no-op
	require.NoError(t, s.DeleteWorkspace("/work/missing"))
}

func TestClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBatch([]types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
	}))
	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{Path: "/work/proj", Name: "proj"}))

	require.NoError(t, s.Clear())

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)

	records, err := s.Workspaces()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSchemaVersionMismatchResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file_index.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertBatch([]types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
	}))
	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{Path: "/work/proj", Name: "proj"}))

	// Simulate a database written by an incompatible version.
	_, err = s.db.Exec(`UPDATE metadata SET value = '1.0.0' WHERE key = 'version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	stats, err := s2.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)

	ok, err := s2.ValidFor([]string{"/work/proj"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBatch([]types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
		makeEntry("util.py", "tools/util.py", "proj", types.KindFile),
		makeEntry("src", "src", "proj", types.KindFolder),
	}))
	require.NoError(t, s.PutWorkspace(types.WorkspaceRecord{
		Path: "/work/proj", Name: "proj", LastIndexed: 1700000000,
	}))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.Files)
	assert.Equal(t, int64(1), stats.Folders)
	assert.Equal(t, int64(1), stats.Workspaces)
	assert.Equal(t, float64(1700000000), stats.LastUpdated)
}

func TestOptimize(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBatch([]types.FileEntry{
		makeEntry("main.go", "src/main.go", "proj", types.KindFile),
	}))
	require.NoError(t, s.RebuildSearchIndex())
	require.NoError(t, s.Optimize())
}

func TestEscapeFTSQuery(t *testing.T) {
	assert.Equal(t, "main*", escapeFTSQuery("main"))
	assert.Equal(t, "", escapeFTSQuery("main.go"))
	assert.Equal(t, "", escapeFTSQuery(`a"b`))
	assert.Equal(t, "", escapeFTSQuery("a(b)"))
	assert.Equal(t, "", escapeFTSQuery("   "))
}
