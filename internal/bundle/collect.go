// Package bundle enumerates the in-scope file set for a detected layout and
// assembles the canonical manifest into a freshly rebuilt output directory.
package bundle

import (
	"os"
	"path/filepath"

	"github.com/vibefi/vibepack/internal/errs"
	"github.com/vibefi/vibepack/internal/layout"
)

// Entry pairs a file's forward-slash relative path with its absolute
// location in the source tree.
type Entry struct {
	Rel string
	Abs string
}

// Collect enumerates the in-scope files for the layout. Order is
// unspecified; the manifest builder re-sorts.
func Collect(dir string, l layout.Layout, ignoreAtRoot map[string]bool) ([]Entry, error) {
	switch l {
	case layout.Constrained:
		return collectConstrained(dir)
	case layout.StaticHtml:
		return collectStatic(dir, ignoreAtRoot)
	default:
		return nil, errs.Structural("unknown layout %d", l)
	}
}

// collectConstrained includes exactly the recursive contents of src/,
// assets/ and abis/ plus the root descriptor and entry files. Nothing else
// on disk is ever shipped.
func collectConstrained(dir string) ([]Entry, error) {
	var entries []Entry
	for _, sub := range []string{layout.SrcDir, layout.AssetsDir, layout.AbisDir} {
		err := layout.WalkTree(filepath.Join(dir, sub), nil, func(rel, abs string) error {
			entries = append(entries, Entry{Rel: sub + "/" + rel, Abs: abs})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	for _, name := range []string{layout.DescriptorFile, layout.EntryFile} {
		abs := filepath.Join(dir, name)
		if _, err := os.Stat(abs); err != nil {
			return nil, errs.Structural("required file %s: %v", name, err)
		}
		entries = append(entries, Entry{Rel: name, Abs: abs})
	}
	return entries, nil
}

// collectStatic walks the whole tree, skipping dotfiles everywhere, the
// ignore set at depth zero only, and any pre-existing manifest (it is always
// regenerated, never copied).
func collectStatic(dir string, ignoreAtRoot map[string]bool) ([]Entry, error) {
	var entries []Entry
	err := layout.WalkTree(dir, ignoreAtRoot, func(rel, abs string) error {
		if rel == layout.ManifestFile {
			return nil
		}
		entries = append(entries, Entry{Rel: rel, Abs: abs})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
