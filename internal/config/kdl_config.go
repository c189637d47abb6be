package config

import (
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/wfi/internal/errors"
)

// KDLFileName is the project-level configuration file.
const KDLFileName = ".wfi.kdl"

// applyKDL overlays a project .wfi.kdl onto the configuration when one
// exists in projectRoot. Relative workspace paths resolve against the file's
// directory.
//
//	workspaces {
//	    workspace "../engine"
//	    workspace "/abs/path" "custom-name"
//	}
//	index {
//	    auto_index false
//	    allow_list false
//	}
//	search {
//	    max_results 50
//	}
func (c *Config) applyKDL(projectRoot string) error {
	kdlPath := filepath.Join(projectRoot, KDLFileName)
	content, err := os.ReadFile(kdlPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewConfigError("kdl", kdlPath, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return errors.NewConfigError("kdl", kdlPath, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "workspaces":
			for _, cn := range n.Children {
				if nodeName(cn) != "workspace" {
					continue
				}
				args := collectStringArgs(cn)
				if len(args) == 0 {
					continue
				}
				path := args[0]
				if !filepath.IsAbs(path) {
					path = filepath.Clean(filepath.Join(projectRoot, path))
				}
				name := ""
				if len(args) > 1 {
					name = args[1]
				}
				if err := c.AddWorkspace(name, path); err != nil {
					return err
				}
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "auto_index":
					if b, ok := firstBoolArg(cn); ok {
						c.AutoIndex = b
					}
				case "allow_list":
					if b, ok := firstBoolArg(cn); ok {
						c.UseAllowList = b
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_results":
					if v, ok := firstIntArg(cn); ok {
						c.MaxResults = v
					}
				}
			}
		}
	}
	return nil
}

// Helpers over the kdl-go document model.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	var out []string
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
