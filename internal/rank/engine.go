package rank

import (
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/wfi/internal/debug"
	"github.com/standardbeagle/wfi/internal/store"
	"github.com/standardbeagle/wfi/internal/types"
)

// Mode restricts completion results by entry kind.
type Mode int

const (
	ModeAny Mode = iota
	ModeFilesOnly
	ModeFoldersOnly
)

const (
	cacheMaxEntries = 100
	cacheTTL        = 5 * time.Minute

	// candidatesPerResult over-fetches so scoring can reorder beyond the
	// store's coarse SQL ordering.
	candidatesPerResult = 5
	minCandidates       = 100
)

// Engine ranks store candidates for interactive name completion. Kind modes
// are pure filters over the ranked unrestricted list, so the file and folder
// views partition it.
type Engine struct {
	store *store.Store
	cache *resultCache
	now   func() time.Time
}

// NewEngine creates a ranking engine over the store.
func NewEngine(st *store.Store) *Engine {
	return &Engine{
		store: st,
		cache: newResultCache(cacheMaxEntries, cacheTTL),
		now:   time.Now,
	}
}

// Complete returns up to maxResults entries ranked by relevance to query.
// Empty queries yield no results. maxResults <= 0 applies the default cap.
func (e *Engine) Complete(query string, mode Mode, maxResults int) ([]types.FileEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = types.DefaultMaxCompletionResults
	}

	ranked, err := e.rankedAny(strings.ToLower(query), maxResults)
	if err != nil {
		return nil, err
	}

	if mode == ModeAny {
		return ranked, nil
	}
	want := types.KindFile
	if mode == ModeFoldersOnly {
		want = types.KindFolder
	}
	var out []types.FileEntry
	for _, entry := range ranked {
		if entry.Kind == want {
			out = append(out, entry)
		}
	}
	return out, nil
}

// rankedAny produces the kind-unrestricted ranked list, memoized per
// (query, maxResults).
func (e *Engine) rankedAny(query string, maxResults int) ([]types.FileEntry, error) {
	key := cacheKey(query, maxResults)
	if cached, ok := e.cache.get(key); ok {
		debug.Log("RANK", "cache hit for %q\n", query)
		return cached, nil
	}

	limit := maxResults * candidatesPerResult
	if limit < minCandidates {
		limit = minCandidates
	}
	candidates, err := e.store.SearchByPrefix(query, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) < limit {
		extra, err := e.store.SearchFuzzy(query, limit-len(candidates))
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			seen[c.Path] = true
		}
		for _, c := range extra {
			if !seen[c.Path] {
				candidates = append(candidates, c)
			}
		}
	}

	now := e.now()
	type scored struct {
		entry types.FileEntry
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{entry: c, score: Score(c, query, now)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return tieLess(ranked[i].entry, ranked[j].entry)
	})

	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	out := make([]types.FileEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}

	e.cache.put(key, out)
	return out, nil
}

// tieLess orders equally scored entries: shorter names first, then by path.
func tieLess(a, b types.FileEntry) bool {
	if len(a.Name) != len(b.Name) {
		return len(a.Name) < len(b.Name)
	}
	return a.Path < b.Path
}

// InvalidateCache flushes memoized results. The index service calls this
// after every completed build so stale completions never outlive an index
// update.
func (e *Engine) InvalidateCache() {
	e.cache.clear()
}
