// Package layout classifies a source directory into one of the two supported
// bundle shapes and provides the depth-aware directory walk used by
// validation and collection.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vibefi/vibepack/internal/errs"
)

// Layout selects the validation and collection rules for a bundle.
type Layout int

const (
	// Constrained is the full application shape: src/, assets/, abis/
	// directories plus descriptor, index.html and package.json at the root.
	Constrained Layout = iota
	// StaticHtml is the minimal shape: descriptor plus index.html.
	StaticHtml
)

// Well-known bundle entries.
const (
	DescriptorFile = "vibefi.json"
	EntryFile      = "index.html"
	PackageFile    = "package.json"
	ManifestFile   = "manifest.json"

	SrcDir    = "src"
	AssetsDir = "assets"
	AbisDir   = "abis"
)

// String returns the manifest wire value for the layout.
func (l Layout) String() string {
	switch l {
	case Constrained:
		return "constrained"
	case StaticHtml:
		return "static-html"
	default:
		return "unknown"
	}
}

var constrainedDirs = []string{SrcDir, AssetsDir, AbisDir}
var constrainedFiles = []string{DescriptorFile, EntryFile, PackageFile}
var staticFiles = []string{DescriptorFile, EntryFile}

// Detect classifies dir. Constrained is tested first because its requirement
// set strictly contains StaticHtml's, so no directory can satisfy both
// ambiguously. When neither shape matches, the error enumerates both
// requirement sets.
func Detect(dir string) (Layout, error) {
	if ok, err := hasShape(dir, constrainedDirs, constrainedFiles); err != nil {
		return 0, err
	} else if ok {
		return Constrained, nil
	}
	if ok, err := hasShape(dir, nil, staticFiles); err != nil {
		return 0, err
	} else if ok {
		return StaticHtml, nil
	}
	return 0, errs.Structural(
		"no supported layout in %s: constrained requires directories [%s] and files [%s]; static-html requires files [%s]",
		dir,
		strings.Join(constrainedDirs, ", "),
		strings.Join(constrainedFiles, ", "),
		strings.Join(staticFiles, ", "))
}

func hasShape(dir string, wantDirs, wantFiles []string) (bool, error) {
	for _, d := range wantDirs {
		info, err := os.Stat(filepath.Join(dir, d))
		if os.IsNotExist(err) || (err == nil && !info.IsDir()) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", filepath.Join(dir, d), err)
		}
	}
	for _, f := range wantFiles {
		info, err := os.Stat(filepath.Join(dir, f))
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", filepath.Join(dir, f), err)
		}
	}
	return true, nil
}

// WalkFunc receives the forward-slash relative path and absolute path of each
// regular file visited.
type WalkFunc func(rel, abs string) error

// WalkTree walks root recursively in sorted directory order, invoking fn for
// every regular file. Dotfiles and dot-directories are skipped at every
// depth. Names in ignoreAtRoot are skipped only at depth zero; deeper
// directories with the same name are walked normally.
func WalkTree(root string, ignoreAtRoot map[string]bool, fn WalkFunc) error {
	return walkDepth(root, "", 0, ignoreAtRoot, fn)
}

func walkDepth(root, rel string, depth int, ignoreAtRoot map[string]bool, fn WalkFunc) error {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", abs, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if depth == 0 && ignoreAtRoot[name] {
			continue
		}
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		if entry.IsDir() {
			if err := walkDepth(root, childRel, depth+1, ignoreAtRoot, fn); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := fn(childRel, filepath.Join(root, filepath.FromSlash(childRel))); err != nil {
			return err
		}
	}
	return nil
}
