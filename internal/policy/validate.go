package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vibefi/vibepack/internal/errs"
	"github.com/vibefi/vibepack/internal/layout"
)

// Script hooks that a constrained package descriptor must not declare: they
// execute arbitrary commands at install or publish time.
var forbiddenScriptHooks = []string{
	"preinstall", "install", "postinstall",
	"prepare", "prepublish", "prepublishOnly",
	"prepack", "postpack",
}

type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Validate enforces the constraints for the detected layout. It performs no
// writes; a validation failure must leave the source and any prior output
// untouched.
func (c *Constraints) Validate(dir string, l layout.Layout) error {
	switch l {
	case layout.Constrained:
		return c.validateConstrained(dir)
	case layout.StaticHtml:
		return c.validateStatic(dir)
	default:
		return errs.Structural("unknown layout %d", l)
	}
}

func (c *Constraints) validateConstrained(dir string) error {
	if err := c.validatePackageJSON(dir); err != nil {
		return err
	}

	buckets := []struct {
		subdir  string
		allowed []string
		abi     bool
	}{
		{layout.SrcDir, c.SourceExtensions, false},
		{layout.AssetsDir, c.AssetExtensions, false},
		{layout.AbisDir, c.AbiExtensions, true},
	}
	for _, bucket := range buckets {
		root := filepath.Join(dir, bucket.subdir)
		err := layout.WalkTree(root, nil, func(rel, abs string) error {
			ext := strings.ToLower(filepath.Ext(rel))
			if !extensionAllowed(ext, bucket.allowed) {
				return errs.Policy("%s/%s: extension %s not allowed in %s/ (allowed: %s)",
					bucket.subdir, rel, extOrNone(ext), bucket.subdir, strings.Join(bucket.allowed, " "))
			}
			if bucket.abi {
				raw, err := os.ReadFile(abs) // #nosec G304 -- path comes from the walked source tree
				if err != nil {
					return errs.Structural("read %s/%s: %v", bucket.subdir, rel, err)
				}
				if !json.Valid(raw) {
					return errs.Policy("%s/%s is not valid JSON", bucket.subdir, rel)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return c.scanForbiddenPatterns(dir)
}

// scanForbiddenPatterns checks every file under src/ plus index.html for
// network-primitive substrings. First match fails fast.
func (c *Constraints) scanForbiddenPatterns(dir string) error {
	scan := func(rel, abs string) error {
		raw, err := os.ReadFile(abs) // #nosec G304 -- path comes from the walked source tree
		if err != nil {
			return errs.Structural("read %s: %v", rel, err)
		}
		content := string(raw)
		for _, pattern := range c.ForbiddenPatterns {
			if strings.Contains(content, pattern) {
				return errs.Policy("%s contains forbidden pattern %q", rel, pattern)
			}
		}
		return nil
	}

	err := layout.WalkTree(filepath.Join(dir, layout.SrcDir), nil, func(rel, abs string) error {
		return scan(layout.SrcDir+"/"+rel, abs)
	})
	if err != nil {
		return err
	}
	return scan(layout.EntryFile, filepath.Join(dir, layout.EntryFile))
}

func (c *Constraints) validatePackageJSON(dir string) error {
	path := filepath.Join(dir, layout.PackageFile)
	raw, err := os.ReadFile(path) // #nosec G304 -- fixed name under the caller's source dir
	if err != nil {
		return errs.Structural("read %s: %v", layout.PackageFile, err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return errs.Policy("%s is not valid JSON: %v", layout.PackageFile, err)
	}

	for _, hook := range forbiddenScriptHooks {
		if _, ok := pkg.Scripts[hook]; ok {
			return errs.Policy("%s declares forbidden script hook %q", layout.PackageFile, hook)
		}
	}

	if err := c.checkDependencies(pkg.Dependencies, c.Dependencies, "dependencies"); err != nil {
		return err
	}
	return c.checkDependencies(pkg.DevDependencies, c.DevDependencies, "devDependencies")
}

func (c *Constraints) checkDependencies(declared, allowed map[string]string, section string) error {
	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	// deterministic failure order
	sort.Strings(names)

	for _, name := range names {
		want, ok := allowed[name]
		if !ok {
			return errs.Policy("%s: package %q is not in the allowlist", section, name)
		}
		if got := declared[name]; got != want {
			return errs.Policy("%s: package %q version %q does not match required %q",
				section, name, got, want)
		}
	}
	return nil
}

func (c *Constraints) validateStatic(dir string) error {
	return layout.WalkTree(dir, c.IgnoreSet(), func(rel, abs string) error {
		if rel == layout.ManifestFile {
			// regenerated, never validated or shipped as input
			return nil
		}
		ext := strings.ToLower(filepath.Ext(rel))
		if !extensionAllowed(ext, c.StaticExtensions) {
			return errs.Policy("%s: extension %s not allowed in static-html bundles", rel, extOrNone(ext))
		}
		return nil
	})
}

func extOrNone(ext string) string {
	if ext == "" {
		return "<none>"
	}
	return ext
}
