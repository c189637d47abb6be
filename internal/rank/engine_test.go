package rank

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/wfi/internal/catalog"
	"github.com/standardbeagle/wfi/internal/store"
	"github.com/standardbeagle/wfi/internal/types"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "file_index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewEngine(st), st
}

func storeEntry(name, relPath string, kind types.Kind) types.FileEntry {
	abs := "/work/proj/" + relPath
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
		Workspace:    "proj",
		Kind:         kind,
		Size:         2048,
		ModifiedTime: float64(time.Now().Add(-60 * 24 * time.Hour).Unix()),
		Extension:    ext,
		PathHash:     catalog.PathHash(abs),
		Priority:     priority,
	}
}

func TestCompleteExactMatchFirst(t *testing.T) {
	eng, st := testEngine(t)
	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("parser_test.go", "src/parser_test.go", types.KindFile),
		storeEntry("parser.go", "src/parser.go", types.KindFile),
		storeEntry("parse_util.go", "src/parse_util.go", types.KindFile),
	}))

	results, err := eng.Complete("parser.go", ModeAny, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "parser.go", results[0].Name)
}

func TestCompleteEmptyQuery(t *testing.T) {
	eng, st := testEngine(t)
	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("main.go", "main.go", types.KindFile),
	}))

	results, err := eng.Complete("", ModeAny, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = eng.Complete("   ", ModeAny, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCompleteRespectsLimit(t *testing.T) {
	eng, st := testEngine(t)
	var entries []types.FileEntry
	for i := 0; i < 20; i++ {
		name := "widget" + strconv.Itoa(i) + ".go"
		entries = append(entries, storeEntry(name, "ui/"+name, types.KindFile))
	}
	require.NoError(t, st.UpsertBatch(entries))

	results, err := eng.Complete("widget", ModeAny, 7)
	require.NoError(t, err)
	assert.Len(t, results, 7)
}

func TestCompleteModePartition(t *testing.T) {
	eng, st := testEngine(t)
	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("config.py", "config.py", types.KindFile),
		storeEntry("config.json", "etc/config.json", types.KindFile),
		storeEntry("config", "config", types.KindFolder),
	}))

	all, err := eng.Complete("config", ModeAny, 10)
	require.NoError(t, err)
	files, err := eng.Complete("config", ModeFilesOnly, 10)
	require.NoError(t, err)
	folders, err := eng.Complete("config", ModeFoldersOnly, 10)
	require.NoError(t, err)

	// file and folder views partition the unrestricted list
	assert.Equal(t, len(all), len(files)+len(folders))
	for _, e := range files {
		assert.Equal(t, types.KindFile, e.Kind)
	}
	for _, e := range folders {
		assert.Equal(t, types.KindFolder, e.Kind)
	}
}

func TestCompleteCaseInsensitive(t *testing.T) {
	eng, st := testEngine(t)
	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("README.md", "README.md", types.KindFile),
	}))

	results, err := eng.Complete("readme", ModeAny, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "README.md", results[0].Name)
}

func TestTieLessShorterNameThenPath(t *testing.T) {
	short := types.FileEntry{Name: "util.go", Path: "/work/proj/a/util.go"}
	sibling := types.FileEntry{Name: "util.go", Path: "/work/proj/b/util.go"}
	long := types.FileEntry{Name: "utility.go", Path: "/work/proj/a/utility.go"}

	assert.True(t, tieLess(short, long))
	assert.False(t, tieLess(long, short))

	// equal name lengths fall through to the lexicographic path
	assert.True(t, tieLess(short, sibling))
	assert.False(t, tieLess(sibling, short))
}

func TestCompleteTieBrokenByPath(t *testing.T) {
	eng, st := testEngine(t)
	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("util.go", "b/util.go", types.KindFile),
		storeEntry("util.go", "a/util.go", types.KindFile),
	}))

	results, err := eng.Complete("util", ModeAny, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/work/proj/a/util.go", results[0].Path)
	assert.Equal(t, "/work/proj/b/util.go", results[1].Path)
}

func TestInvalidateCachePicksUpNewEntries(t *testing.T) {
	eng, st := testEngine(t)
	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("alpha.go", "alpha.go", types.KindFile),
	}))

	results, err := eng.Complete("alpha", ModeAny, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, st.UpsertBatch([]types.FileEntry{
		storeEntry("alpha_two.go", "alpha_two.go", types.KindFile),
	}))

	// cached list still served until invalidation
	results, err = eng.Complete("alpha", ModeAny, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	eng.InvalidateCache()
	results, err = eng.Complete("alpha", ModeAny, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestResultCacheEviction(t *testing.T) {
	c := newResultCache(2, time.Minute)

	c.put(1, []types.FileEntry{{Name: "a"}})
	c.put(2, []types.FileEntry{{Name: "b"}})
	c.put(3, []types.FileEntry{{Name: "c"}})

	_, ok := c.get(1)
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.get(3)
	assert.True(t, ok)
}

func TestResultCacheTTL(t *testing.T) {
	c := newResultCache(10, time.Nanosecond)
	c.put(1, []types.FileEntry{{Name: "a"}})
	time.Sleep(time.Millisecond)

	_, ok := c.get(1)
	assert.False(t, ok)
}
