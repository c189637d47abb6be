package contentsearch

import "time"

// Engine names reported in Result.Engine.
const (
	EngineRipgrep  = "ripgrep"
	EngineInternal = "internal"
)

// Match is one matching line together with its surrounding context.
// MatchStart and MatchEnd are byte offsets of the first pattern occurrence
// within Line.
type Match struct {
	Path       string
	LineNumber int
	Line       string
	MatchStart int
	MatchEnd   int
	Before     []string
	After      []string
}

// Result is the outcome of one content search. Truncated is set when the
// global result cap stopped the search early or a cancellation returned
// partial results.
type Result struct {
	Matches   []Match
	Truncated bool
	Engine    string
	Elapsed   time.Duration
}
