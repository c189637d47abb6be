// Package contentsearch greps file contents under a set of root directories.
// A ripgrep subprocess is preferred when available; a pure in-process
// scanner provides identical semantics otherwise.
package contentsearch

import (
	"fmt"
	"os"

	"github.com/standardbeagle/wfi/internal/errors"
)

// Defaults applied by Options.normalize.
const (
	DefaultMaxResults  = 1000
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// Options describes one content search. Zero values mean "default", except
// Pattern and Roots which are required.
type Options struct {
	// Pattern is a regular expression, or a literal string when
	// FixedString is set.
	Pattern string

	// Roots are the directories to search. Each must exist.
	Roots []string

	CaseSensitive bool
	WholeWord     bool
	FixedString   bool

	// IncludeGlobs restricts matches to file paths matching any glob.
	// ExcludeGlobs removes matching paths afterwards. Globs use
	// gitignore-style ** syntax against the path relative to the root.
	IncludeGlobs []string
	ExcludeGlobs []string

	// Context line counts around each match.
	ContextBefore int
	ContextAfter  int

	// MaxPerFile caps matches per file; 0 means unlimited.
	MaxPerFile int

	// MaxResults caps total matches across all files and must be
	// positive. Hitting the cap sets Result.Truncated.
	MaxResults int

	// MaxFileSize skips larger files; 0 applies the default.
	MaxFileSize int64
}

// validate rejects unusable options. Everything except root existence is
// checked without touching the filesystem.
func (o *Options) validate() error {
	if o.Pattern == "" {
		return errors.NewConfigError("pattern", "", fmt.Errorf("pattern must not be empty"))
	}
	if o.MaxResults <= 0 {
		return errors.NewConfigError("max_results", fmt.Sprint(o.MaxResults),
			fmt.Errorf("must be positive"))
	}
	if o.ContextBefore < 0 || o.ContextAfter < 0 {
		return errors.NewConfigError("context", "", fmt.Errorf("context line counts must not be negative"))
	}
	if o.MaxPerFile < 0 || o.MaxFileSize < 0 {
		return errors.NewConfigError("limits", "", fmt.Errorf("limits must not be negative"))
	}
	if len(o.Roots) == 0 {
		return errors.NewConfigError("roots", "", fmt.Errorf("at least one search root is required"))
	}
	for _, root := range o.Roots {
		info, err := os.Stat(root)
		if err != nil {
			return errors.NewConfigError("roots", root, err)
		}
		if !info.IsDir() {
			return errors.NewConfigError("roots", root, fmt.Errorf("not a directory"))
		}
	}
	return nil
}

// normalize fills defaulted fields in place.
func (o *Options) normalize() {
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
}
