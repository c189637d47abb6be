// Package catalog holds the static classification tables shared by the
// indexing pipeline and the ranking engine: extension priorities, exclusion
// sets, and the identity key derivation for index entries.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/wfi/internal/types"
)

// FolderPriority is the fixed priority assigned to folder entries. It sits
// above typical file priorities so folders stay competitive in ranked
// results.
const FolderPriority = 50

// DefaultFilePriority applies to files whose extension has no table entry.
const DefaultFilePriority = 30

// extensionPriorities maps a lower-cased extension (with leading dot) to its
// base relevance priority. Source files rank highest, configuration and
// documentation mid-range, media lowest.
var extensionPriorities = map[string]int{
	".py": 100, ".cpp": 95, ".c": 95, ".h": 95, ".hpp": 95,
	".js": 90, ".ts": 90, ".jsx": 90, ".tsx": 90,
	".java": 85, ".cs": 85, ".go": 85, ".rs": 85,
	".php": 80, ".rb": 80, ".swift": 80, ".kt": 80,

	".json": 70, ".yaml": 70, ".yml": 70, ".xml": 70,
	".toml": 70, ".ini": 65, ".conf": 65, ".cfg": 65,
	".csv": 60, ".txt": 60, ".md": 60, ".rst": 60,

	".cmake": 50, ".make": 50, ".gradle": 50,
	".sln": 50, ".vcxproj": 50, ".pro": 50,

	".png": 20, ".jpg": 20, ".jpeg": 20, ".gif": 20,
	".wav": 10, ".mp3": 10, ".mp4": 10, ".avi": 10,
}

// excludedDirs are never descended into during a scan or content search.
var excludedDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, "Binaries": true,
	"Intermediate": true, "Saved": true, "DerivedDataCache": true,
	".vs": true, "obj": true, "bin": true, ".git": true,
	".svn": true, ".hg": true, "build": true, "dist": true, "out": true,
}

// excludedExtensions are never indexed regardless of the allow-list.
var excludedExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".lib": true,
	".a": true, ".o": true, ".obj": true, ".class": true, ".jar": true,
	".war": true, ".pdb": true, ".idb": true, ".tmp": true, ".temp": true,
	".log": true, ".cache": true, ".lock": true,
}

// importantNameTokens mark files that are always indexed regardless of
// extension (case-insensitive substring match on the file name).
var importantNameTokens = []string{
	"readme", "license", "changelog", "makefile", "dockerfile",
	"cmakelist", "cmakelists", "requirements", "package",
	"gulpfile", "gruntfile", "webpack", "tsconfig", "jsconfig",
}

// allowedExtensions is the default allow-list applied to ordinary files when
// allow-list filtering is enabled.
var allowedExtensions = map[string]bool{
	".py": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".cxx": true, ".hxx": true, ".cs": true, ".java": true, ".js": true,
	".ts": true, ".jsx": true, ".tsx": true, ".go": true, ".rs": true,
	".php": true, ".rb": true, ".swift": true, ".kt": true,

	".uproject": true, ".uplugin": true, ".uasset": true, ".umap": true,
	".ucpp": true, ".build": true, ".target": true, ".ini": true,
	".cfg": true, ".config": true,

	".json": true, ".yaml": true, ".yml": true, ".xml": true,
	".toml": true, ".csv": true, ".txt": true, ".md": true, ".rst": true,

	".cmake": true, ".make": true, ".gradle": true, ".sln": true,
	".vcxproj": true, ".pro": true, ".pri": true, ".qmake": true,

	".hlsl": true, ".glsl": true, ".shader": true, ".cginc": true,
	".compute": true,
}

// allowedDotDir is the single dotted directory name that survives the
// hidden-entry filter.
const allowedDotDir = ".claude"

// PathHash derives the stable identity key for an absolute path. Two entries
// with equal paths always collide to the same key so re-indexing replaces
// rather than duplicates.
func PathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:16])
}

// ExtensionPriority returns the ranking base priority for an extension.
func ExtensionPriority(ext string) int {
	if p, ok := extensionPriorities[ext]; ok {
		return p
	}
	return DefaultFilePriority
}

// NormalizeExtension lower-cases the extension of a file name, keeping the
// leading dot. Folders and extension-less names yield "".
func NormalizeExtension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// SkipDir reports whether a directory entry should be pruned from a walk.
func SkipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != allowedDotDir {
		return true
	}
	return excludedDirs[name]
}

// IsExcludedDirName reports whether the bare directory name is in the static
// exclusion set (used by the content search default exclude policy, which
// does not apply the dot-entry rule to user-supplied roots).
func IsExcludedDirName(name string) bool {
	return excludedDirs[name]
}

// ExcludedDirNames returns the static exclusion set as a sorted-ish slice for
// building external tool arguments.
func ExcludedDirNames() []string {
	names := make([]string, 0, len(excludedDirs))
	for name := range excludedDirs {
		names = append(names, name)
	}
	return names
}

// IsImportantName reports whether a file name contains one of the
// always-index tokens, case-insensitively.
func IsImportantName(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range importantNameTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// Policy controls which ordinary files a scan includes.
type Policy struct {
	// UseAllowList restricts ordinary files to the allow-listed extensions.
	// When false every non-excluded extension is indexed.
	UseAllowList bool
}

// DefaultPolicy matches the original system's behavior: allow-list enabled.
func DefaultPolicy() Policy {
	return Policy{UseAllowList: true}
}

// IncludeFile decides whether a file with the given name, extension and size
// belongs in the index. The extension must already be normalized.
func (p Policy) IncludeFile(name, ext string, size int64) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if excludedExtensions[ext] {
		return false
	}
	if size > types.MaxIndexableFileSize {
		return false
	}
	if IsImportantName(name) {
		return true
	}
	if !p.UseAllowList {
		return true
	}
	return allowedExtensions[ext]
}
