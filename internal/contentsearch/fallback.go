package contentsearch

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"

	"github.com/standardbeagle/wfi/internal/catalog"
	"github.com/standardbeagle/wfi/internal/debug"
	"github.com/standardbeagle/wfi/internal/errors"
)

// compilePattern converts the search options into one regexp.
func compilePattern(opts Options) (*regexp.Regexp, error) {
	pattern := opts.Pattern
	if opts.FixedString {
		pattern = regexp.QuoteMeta(pattern)
	}
	if opts.WholeWord {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if !opts.CaseSensitive {
		pattern = `(?i)` + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewSearchError(opts.Pattern, err)
	}
	return re, nil
}

// searchInternal is the pure in-process scanner. File enumeration applies
// the same exclusion and glob rules as the ripgrep arguments; matching runs
// across a bounded worker pool. Cancellation returns partial matches with
// Truncated set.
func searchInternal(ctx context.Context, opts Options) (*Result, error) {
	re, err := compilePattern(opts)
	if err != nil {
		return nil, err
	}

	files, walkCancelled := enumerateFiles(ctx, opts)

	var (
		mu      sync.Mutex
		matches []Match
		full    bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, path := range files {
		mu.Lock()
		stop := full
		mu.Unlock()
		if stop || gctx.Err() != nil {
			break
		}

		path := path
		g.Go(func() error {
			fileMatches := searchFile(path, re, opts)
			if len(fileMatches) == 0 {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			matches = append(matches, fileMatches...)
			if len(matches) >= opts.MaxResults {
				full = true
			}
			return nil
		})
	}
	g.Wait()

	res := &Result{Engine: EngineInternal, Matches: matches}
	sort.SliceStable(res.Matches, func(i, j int) bool {
		if res.Matches[i].Path != res.Matches[j].Path {
			return res.Matches[i].Path < res.Matches[j].Path
		}
		return res.Matches[i].LineNumber < res.Matches[j].LineNumber
	})
	if len(res.Matches) > opts.MaxResults {
		res.Matches = res.Matches[:opts.MaxResults]
		res.Truncated = true
	} else if full {
		res.Truncated = true
	}
	if ctx.Err() != nil || walkCancelled {
		res.Truncated = true
	}
	return res, nil
}

// enumerateFiles collects candidate file paths under the roots, pruning
// excluded and hidden directories and applying the include/exclude globs
// against root-relative paths.
func enumerateFiles(ctx context.Context, opts Options) (files []string, cancelled bool) {
	for _, root := range opts.Roots {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				cancelled = true
				return fs.SkipAll
			}
			if err != nil {
				return nil
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && catalog.SkipDir(name) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if !matchesGlobs(rel, opts.IncludeGlobs, opts.ExcludeGlobs) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil || info.Size() > opts.MaxFileSize {
				return nil
			}
			files = append(files, path)
			return nil
		})
	}
	return files, cancelled
}

func matchesGlobs(rel string, include, exclude []string) bool {
	if len(include) > 0 {
		matched := false
		for _, g := range include {
			if ok, _ := doublestar.Match(g, rel); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, g := range exclude {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	return true
}

// searchFile scans one file, returning its matches with context lines.
// Unreadable and binary files are skipped silently, matching ripgrep.
func searchFile(path string, re *regexp.Regexp, opts Options) []Match {
	data, err := os.ReadFile(path)
	if err != nil {
		debug.LogSearch("skipping file: %v\n", errors.NewFileError("read", path, err))
		return nil
	}
	if isBinary(data) {
		return nil
	}

	text, ok := decodeText(data)
	if !ok {
		return nil
	}

	lines := strings.Split(text, "\n")
	var matches []Match
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}

		m := Match{
			Path:       path,
			LineNumber: i + 1,
			Line:       line,
			MatchStart: loc[0],
			MatchEnd:   loc[1],
		}
		for j := i - opts.ContextBefore; j < i; j++ {
			if j >= 0 {
				m.Before = append(m.Before, strings.TrimSuffix(lines[j], "\r"))
			}
		}
		for j := i + 1; j <= i+opts.ContextAfter && j < len(lines); j++ {
			m.After = append(m.After, strings.TrimSuffix(lines[j], "\r"))
		}
		matches = append(matches, m)

		if opts.MaxPerFile > 0 && len(matches) >= opts.MaxPerFile {
			break
		}
	}
	return matches
}

// isBinary applies ripgrep's NUL-byte heuristic to the head of the file.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// decodeText converts raw bytes to a string, trying UTF-8 first and then a
// short ladder of legacy encodings.
func decodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), true
	}
	decoders := []encoding.Encoding{
		japanese.ShiftJIS,
		japanese.EUCJP,
		charmap.ISO8859_1,
	}
	for _, enc := range decoders {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), true
		}
	}
	return "", false
}
