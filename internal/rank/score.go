// Package rank implements multi-signal relevance scoring and ranked name
// completion over the index store.
package rank

import (
	"strings"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/wfi/internal/types"
)

// Scoring signal weights. Match-quality bonuses dominate so an exact name
// match always outranks any combination of the secondary signals.
const (
	exactMatchBonus     = 1000.0
	exactSansExtBonus   = 950.0
	prefixMatchBonus    = 500.0
	wordBoundaryBonus   = 300.0
	substringMatchBonus = 200.0
	pathMatchBonus      = 100.0
	folderBonus         = 50.0

	depthPenaltyPerLevel = 5.0
	nameLengthPenalty    = 0.1

	recentBonus       = 30.0
	semiRecentBonus   = 15.0
	moderateSizeBonus = 20.0
	hugeSizePenalty   = 30.0

	similarityThreshold = 0.8
	similarityWeight    = 150.0
)

// Score computes the relevance of one entry for a lower-cased query. The
// function is pure; the caller supplies the clock.
func Score(entry types.FileEntry, query string, now time.Time) float64 {
	score := float64(entry.Priority) / 10.0

	if entry.Kind == types.KindFolder {
		score += folderBonus
	}

	name := strings.ToLower(entry.Name)
	relPath := strings.ToLower(entry.RelativePath)

	switch {
	case name == query:
		score += exactMatchBonus
	case entry.Kind == types.KindFile && stripExt(name) == query:
		score += exactSansExtBonus
	case strings.HasPrefix(name, query):
		score += prefixMatchBonus
	case strings.Contains(name, query):
		if atWordBoundary(name, query) {
			score += wordBoundaryBonus
		} else {
			score += substringMatchBonus
		}
	default:
		// Name misses entirely; reward near-misses like transposed or
		// dropped characters.
		if sim, err := edlib.StringsSimilarity(name, query, edlib.JaroWinkler); err == nil {
			if float64(sim) >= similarityThreshold {
				score += float64(sim) * similarityWeight
			}
		}
	}

	if strings.Contains(relPath, query) {
		score += pathMatchBonus
	}

	score -= float64(strings.Count(entry.RelativePath, "/")) * depthPenaltyPerLevel
	score -= float64(len(entry.Name)) * nameLengthPenalty

	age := now.Sub(entry.ModTime())
	switch {
	case age < 7*24*time.Hour:
		score += recentBonus
	case age < 30*24*time.Hour:
		score += semiRecentBonus
	}

	if entry.Kind == types.KindFile {
		switch {
		case entry.Size >= 1024 && entry.Size <= 1024*1024:
			score += moderateSizeBonus
		case entry.Size > 10*1024*1024:
			score -= hugeSizePenalty
		}
	}

	return score
}

func stripExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// atWordBoundary reports whether query occurs in name immediately after a
// separator character.
func atWordBoundary(name, query string) bool {
	for _, sep := range []string{"_", "-", ".", " "} {
		if strings.Contains(name, sep+query) {
			return true
		}
	}
	return false
}
