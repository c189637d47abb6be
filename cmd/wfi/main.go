package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/wfi/internal/config"
	"github.com/standardbeagle/wfi/internal/contentsearch"
	"github.com/standardbeagle/wfi/internal/rank"
	"github.com/standardbeagle/wfi/internal/service"
	"github.com/standardbeagle/wfi/internal/store"
	"github.com/standardbeagle/wfi/internal/types"
)

var Version = "dev"

func loadConfig(c *cli.Context) (*config.Config, error) {
	projectRoot := c.String("project")
	if projectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			projectRoot = wd
		}
	}
	return config.Load(c.String("data-dir"), projectRoot)
}

func openService(cfg *config.Config) (*service.IndexService, *store.Store, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return service.New(st), st, nil
}

func main() {
	app := &cli.App{
		Name:                   "wfi",
		Usage:                  "Workspace file indexing and search",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Directory for the index database and settings",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project directory containing an optional " + config.KDLFileName,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit machine-readable JSON output",
			},
		},
		Commands: []*cli.Command{
			indexCommand(),
			queryCommand(),
			searchCommand(),
			statsCommand(),
			workspaceCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Build or refresh the index for the configured workspaces",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Rescan all workspaces even without detected drift",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress progress output",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(cfg.Workspaces) == 0 {
				return fmt.Errorf("no workspaces configured; run 'wfi workspace add <path>' first")
			}

			svc, st, err := openService(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := signalContext()
			defer cancel()

			handle, err := svc.Build(ctx, cfg.Workspaces, c.Bool("force"))
			if err != nil {
				return err
			}

			for p := range handle.Progress() {
				if c.Bool("quiet") {
					continue
				}
				if p.Workspace != "" {
					fmt.Printf("\r[%3d%%] %s: %s        ", p.Percent, p.Workspace, p.Stage)
				} else {
					fmt.Printf("\r[%3d%%] %s        ", p.Percent, p.Stage)
				}
			}
			result, err := handle.Join()
			if !c.Bool("quiet") {
				fmt.Println()
			}
			if err != nil {
				return err
			}

			if result.Cancelled {
				fmt.Println("Indexing cancelled; partial results kept")
				return nil
			}
			fmt.Printf("Indexed %d workspaces (%d skipped): %d files, %d folders\n",
				result.WorkspacesIndexed, result.WorkspacesSkipped, result.Files, result.Folders)
			return nil
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Ranked file name completion against the index",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Result kinds: any, files, folders",
				Value: "any",
			},
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results (0 uses the configured default)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one query argument")
			}

			mode := rank.ModeAny
			switch c.String("mode") {
			case "any":
			case "files":
				mode = rank.ModeFilesOnly
			case "folders":
				mode = rank.ModeFoldersOnly
			default:
				return fmt.Errorf("unknown mode %q", c.String("mode"))
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			svc, st, err := openService(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			maxResults := c.Int("max")
			if maxResults <= 0 {
				maxResults = cfg.MaxResults
			}
			entries := svc.Complete(c.Args().First(), mode, maxResults)

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(entries)
			}
			for _, e := range entries {
				marker := " "
				if e.Kind == types.KindFolder {
					marker = "/"
				}
				fmt.Printf("%s%s\t%s\t%s\n", e.Name, marker, e.Workspace, e.RelativePath)
			}
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search file contents under the configured workspaces",
		ArgsUsage: "<pattern>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Search root (repeatable; defaults to all workspaces)",
			},
			&cli.BoolFlag{
				Name:    "case-sensitive",
				Aliases: []string{"s"},
				Usage:   "Match case exactly",
			},
			&cli.BoolFlag{
				Name:    "word",
				Aliases: []string{"w"},
				Usage:   "Match whole words only",
			},
			&cli.BoolFlag{
				Name:    "fixed",
				Aliases: []string{"F"},
				Usage:   "Treat the pattern as a literal string",
			},
			&cli.IntFlag{
				Name:    "before",
				Aliases: []string{"B"},
				Usage:   "Context lines before each match",
			},
			&cli.IntFlag{
				Name:    "after",
				Aliases: []string{"A"},
				Usage:   "Context lines after each match",
			},
			&cli.StringSliceFlag{
				Name:    "glob",
				Aliases: []string{"g"},
				Usage:   "Only search files matching the glob (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-glob",
				Usage: "Skip files matching the glob (repeatable)",
			},
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Maximum total matches",
				Value:   contentsearch.DefaultMaxResults,
			},
			&cli.IntFlag{
				Name:    "max-per-file",
				Aliases: []string{"m"},
				Usage:   "Maximum matches per file",
			},
			&cli.BoolFlag{
				Name:  "no-ripgrep",
				Usage: "Force the internal scanner even when ripgrep is installed",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one pattern argument")
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			roots := c.StringSlice("root")
			if len(roots) == 0 {
				roots = cfg.WorkspacePaths()
			}
			if len(roots) == 0 {
				return fmt.Errorf("no search roots; configure workspaces or pass --root")
			}

			engine := contentsearch.NewEngine()
			if c.Bool("no-ripgrep") {
				engine = contentsearch.NewInternalEngine()
			}

			ctx, cancel := signalContext()
			defer cancel()

			res, err := engine.Search(ctx, contentsearch.Options{
				Pattern:       c.Args().First(),
				Roots:         roots,
				CaseSensitive: c.Bool("case-sensitive"),
				WholeWord:     c.Bool("word"),
				FixedString:   c.Bool("fixed"),
				IncludeGlobs:  c.StringSlice("glob"),
				ExcludeGlobs:  c.StringSlice("exclude-glob"),
				ContextBefore: c.Int("before"),
				ContextAfter:  c.Int("after"),
				MaxResults:    c.Int("max"),
				MaxPerFile:    c.Int("max-per-file"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(res)
			}
			for _, m := range res.Matches {
				for i, line := range m.Before {
					fmt.Printf("%s:%d- %s\n", m.Path, m.LineNumber-len(m.Before)+i, line)
				}
				fmt.Printf("%s:%d: %s\n", m.Path, m.LineNumber, m.Line)
				for i, line := range m.After {
					fmt.Printf("%s:%d- %s\n", m.Path, m.LineNumber+1+i, line)
				}
			}
			fmt.Fprintf(os.Stderr, "%d matches (%s, %s)", len(res.Matches), res.Engine, res.Elapsed.Round(time.Millisecond))
			if res.Truncated {
				fmt.Fprint(os.Stderr, " [truncated]")
			}
			fmt.Fprintln(os.Stderr)
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index statistics",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			svc, st, err := openService(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := svc.Stats()
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(stats)
			}
			fmt.Printf("Entries:    %d (%d files, %d folders)\n", stats.TotalEntries, stats.Files, stats.Folders)
			fmt.Printf("Workspaces: %d\n", stats.Workspaces)
			fmt.Printf("Extensions: %d\n", stats.Extensions)
			if stats.LastUpdated > 0 {
				fmt.Printf("Updated:    %s\n", time.Unix(int64(stats.LastUpdated), 0).Format(time.RFC3339))
			} else {
				fmt.Println("Updated:    never")
			}
			return nil
		},
	}
}

func workspaceCommand() *cli.Command {
	return &cli.Command{
		Name:    "workspace",
		Aliases: []string{"ws"},
		Usage:   "Manage indexed workspaces",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Register a workspace root",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name (defaults to the directory name)",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one path argument")
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if err := cfg.AddWorkspace(c.String("name"), c.Args().First()); err != nil {
						return err
					}
					if err := cfg.Save(); err != nil {
						return err
					}
					fmt.Printf("Added workspace %s\n", c.Args().First())
					return nil
				},
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a workspace and its index entries",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one path argument")
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					path, err := filepath.Abs(c.Args().First())
					if err != nil {
						return err
					}
					if !cfg.RemoveWorkspace(path) {
						return fmt.Errorf("workspace not found: %s", path)
					}
					if err := cfg.Save(); err != nil {
						return err
					}

					svc, st, err := openService(cfg)
					if err != nil {
						return err
					}
					defer st.Close()
					if err := svc.RemoveWorkspace(path); err != nil {
						return err
					}
					fmt.Printf("Removed workspace %s\n", path)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List configured workspaces",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return json.NewEncoder(os.Stdout).Encode(cfg.Workspaces)
					}
					for _, ws := range cfg.Workspaces {
						fmt.Printf("%s\t%s\n", ws.Name, ws.Path)
					}
					return nil
				},
			},
		},
	}
}
