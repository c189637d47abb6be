// Package config layers the index configuration: built-in defaults, the
// persisted settings file in the user data directory, and an optional
// project-level .wfi.kdl override.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/wfi/internal/errors"
	"github.com/standardbeagle/wfi/internal/types"
)

// Config is the effective configuration after all layers are merged.
type Config struct {
	// Workspaces are the roots to index, in registration order.
	Workspaces []types.Workspace

	// AutoIndex enables the drift check on startup.
	AutoIndex bool

	// MaxResults caps interactive completion results.
	MaxResults int

	// UseAllowList restricts indexed files to the known extension set.
	UseAllowList bool

	// DataDir holds the database and the persisted settings file.
	DataDir string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AutoIndex:    true,
		MaxResults:   types.DefaultMaxCompletionResults,
		UseAllowList: true,
	}
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.NewConfigError("data_dir", "", err)
	}
	return filepath.Join(base, "wfi"), nil
}

// DatabasePath returns the index database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "file_index.db")
}

func (c *Config) settingsPath() string {
	return filepath.Join(c.DataDir, "settings.toml")
}

// settings is the persisted portion of the configuration.
type settings struct {
	AutoIndex  *bool              `toml:"auto_index,omitempty"`
	MaxResults int                `toml:"max_results,omitempty"`
	Workspaces []workspaceSetting `toml:"workspaces,omitempty"`
}

type workspaceSetting struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Load builds the effective configuration: defaults, then the persisted
// settings under dataDir, then a .wfi.kdl in projectRoot when present. An
// empty dataDir selects the per-user default; an empty projectRoot skips
// the project layer.
func Load(dataDir, projectRoot string) (*Config, error) {
	cfg := Default()

	if dataDir == "" {
		var err error
		dataDir, err = DefaultDataDir()
		if err != nil {
			return nil, err
		}
	}
	cfg.DataDir = dataDir

	if err := cfg.loadSettings(); err != nil {
		return nil, err
	}

	if projectRoot != "" {
		if err := cfg.applyKDL(projectRoot); err != nil {
			return nil, err
		}
	}

	if cfg.MaxResults <= 0 {
		return nil, errors.NewConfigError("max_results", fmt.Sprint(cfg.MaxResults),
			fmt.Errorf("must be positive"))
	}
	return cfg, nil
}

func (c *Config) loadSettings() error {
	data, err := os.ReadFile(c.settingsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewConfigError("settings", c.settingsPath(), err)
	}

	var s settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return errors.NewConfigError("settings", c.settingsPath(), err)
	}

	if s.AutoIndex != nil {
		c.AutoIndex = *s.AutoIndex
	}
	if s.MaxResults > 0 {
		c.MaxResults = s.MaxResults
	}
	for _, ws := range s.Workspaces {
		c.addWorkspace(ws.Name, ws.Path)
	}
	return nil
}

// Save persists the mutable settings back to the data directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return errors.NewConfigError("data_dir", c.DataDir, err)
	}

	s := settings{
		AutoIndex:  &c.AutoIndex,
		MaxResults: c.MaxResults,
	}
	for _, ws := range c.Workspaces {
		s.Workspaces = append(s.Workspaces, workspaceSetting{Name: ws.Name, Path: ws.Path})
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return errors.NewConfigError("settings", c.settingsPath(), err)
	}
	if err := os.WriteFile(c.settingsPath(), data, 0o644); err != nil {
		return errors.NewConfigError("settings", c.settingsPath(), err)
	}
	return nil
}

// AddWorkspace registers a workspace root, deriving the display name from
// the directory when name is empty. Re-adding an existing path updates the
// name instead of duplicating it.
func (c *Config) AddWorkspace(name, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.NewConfigError("workspace", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.NewConfigError("workspace", abs, err)
	}
	if !info.IsDir() {
		return errors.NewConfigError("workspace", abs, fmt.Errorf("not a directory"))
	}
	c.addWorkspace(name, abs)
	return nil
}

func (c *Config) addWorkspace(name, path string) {
	if name == "" {
		name = filepath.Base(path)
	}
	for i, ws := range c.Workspaces {
		if ws.Path == path {
			c.Workspaces[i].Name = name
			return
		}
	}
	c.Workspaces = append(c.Workspaces, types.Workspace{Name: name, Path: path})
}

// RemoveWorkspace drops a workspace by path, reporting whether it existed.
func (c *Config) RemoveWorkspace(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for i, ws := range c.Workspaces {
		if ws.Path == abs || ws.Path == path {
			c.Workspaces = append(c.Workspaces[:i], c.Workspaces[i+1:]...)
			return true
		}
	}
	return false
}

// WorkspacePaths returns the configured workspace roots in order.
func (c *Config) WorkspacePaths() []string {
	paths := make([]string, len(c.Workspaces))
	for i, ws := range c.Workspaces {
		paths[i] = ws.Path
	}
	return paths
}
