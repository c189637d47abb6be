package contentsearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/standardbeagle/wfi/internal/catalog"
	"github.com/standardbeagle/wfi/internal/debug"
	"github.com/standardbeagle/wfi/internal/errors"
)

// rgEvent is the subset of ripgrep's --json stream we consume.
type rgEvent struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
		Submatches []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"submatches"`
	} `json:"data"`
}

func buildRipgrepArgs(opts Options) []string {
	args := []string{"--json", "--line-number"}

	if !opts.CaseSensitive {
		args = append(args, "-i")
	}
	if opts.FixedString {
		args = append(args, "-F")
	}
	if opts.WholeWord {
		args = append(args, "-w")
	}
	if opts.ContextBefore > 0 {
		args = append(args, "-B", strconv.Itoa(opts.ContextBefore))
	}
	if opts.ContextAfter > 0 {
		args = append(args, "-A", strconv.Itoa(opts.ContextAfter))
	}
	if opts.MaxPerFile > 0 {
		args = append(args, "-m", strconv.Itoa(opts.MaxPerFile))
	}
	args = append(args, "--max-filesize", strconv.FormatInt(opts.MaxFileSize, 10))

	for _, g := range opts.IncludeGlobs {
		args = append(args, "-g", g)
	}
	for _, g := range opts.ExcludeGlobs {
		args = append(args, "-g", "!"+g)
	}
	for _, name := range catalog.ExcludedDirNames() {
		args = append(args, "-g", "!"+name, "-g", "!**/"+name+"/**")
	}

	args = append(args, "--", opts.Pattern)
	args = append(args, opts.Roots...)
	return args
}

// searchRipgrep streams ripgrep's JSON output, assembling matches with their
// context lines. Hitting the global cap kills the subprocess and returns the
// truncated result. Cancellation returns partial matches without an error.
func searchRipgrep(ctx context.Context, rgPath string, opts Options) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, rgPath, buildRipgrepArgs(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewSearchError(opts.Pattern, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSearchError(opts.Pattern, err)
	}

	res := &Result{Engine: EngineRipgrep}
	// currentIdx points at the last match, which receives after-context
	// lines; before buffers context lines for the next match.
	currentIdx := -1
	var before []string
	afterRemaining := 0

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev rgEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			// Not part of the JSON protocol; ignore the line.
			continue
		}

		switch ev.Type {
		case "begin":
			currentIdx = -1
			before = nil
			afterRemaining = 0

		case "context":
			line := trimLine(ev.Data.Lines.Text)
			if afterRemaining > 0 && currentIdx >= 0 {
				res.Matches[currentIdx].After = append(res.Matches[currentIdx].After, line)
				afterRemaining--
				continue
			}
			before = append(before, line)
			if len(before) > opts.ContextBefore {
				before = before[len(before)-opts.ContextBefore:]
			}

		case "match":
			m := Match{
				Path:       ev.Data.Path.Text,
				LineNumber: ev.Data.LineNumber,
				Line:       trimLine(ev.Data.Lines.Text),
			}
			if len(ev.Data.Submatches) > 0 {
				m.MatchStart = ev.Data.Submatches[0].Start
				m.MatchEnd = ev.Data.Submatches[0].End
			}
			if len(before) > 0 {
				m.Before = append([]string(nil), before...)
				before = nil
			}
			res.Matches = append(res.Matches, m)
			currentIdx = len(res.Matches) - 1
			afterRemaining = opts.ContextAfter

			if len(res.Matches) >= opts.MaxResults {
				res.Truncated = true
				cancel()
			}
		}

		if res.Truncated {
			break
		}
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		res.Truncated = true
		return res, nil
	}
	if res.Truncated {
		return res, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(waitErr, &exitErr) && exitErr.ExitCode() == 1 {
			return res, nil // no matches
		}
		if len(res.Matches) > 0 {
			// Partial failure (unreadable subtree); keep what we got.
			debug.LogSearch("ripgrep exited with error after partial output: %v\n", waitErr)
			return res, nil
		}
		return nil, errors.NewSearchError(opts.Pattern,
			fmt.Errorf("ripgrep failed: %w: %s", waitErr, stderr.String()))
	}
	return res, nil
}

func trimLine(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
