// Package policy holds the packaging constraints and enforces them against a
// detected layout. Constraints are loaded once per run, from built-in
// defaults or an override file, and are immutable thereafter.
package policy

import (
	"fmt"

	"github.com/spf13/viper"
)

// Constraints is the policy enforced during packaging.
type Constraints struct {
	// Exact-version allowlists; a declared dependency must match exactly.
	Dependencies    map[string]string `mapstructure:"dependencies" json:"dependencies"`
	DevDependencies map[string]string `mapstructure:"devDependencies" json:"devDependencies"`

	// Allowed extensions per file bucket for the constrained layout.
	SourceExtensions []string `mapstructure:"sourceExtensions" json:"sourceExtensions"`
	AssetExtensions  []string `mapstructure:"assetExtensions" json:"assetExtensions"`
	AbiExtensions    []string `mapstructure:"abiExtensions" json:"abiExtensions"`

	// Allowed extensions anywhere in a static-html bundle.
	StaticExtensions []string `mapstructure:"staticExtensions" json:"staticExtensions"`

	// Substrings that must not appear in constrained source files.
	ForbiddenPatterns []string `mapstructure:"forbiddenPatterns" json:"forbiddenPatterns"`

	// Directory names skipped at the top level of a static-html walk.
	IgnoreDirs []string `mapstructure:"ignoreDirs" json:"ignoreDirs"`

	// Maximum raw byte length of a root identifier.
	MaxIdentifierBytes int `mapstructure:"maxIdentifierBytes" json:"maxIdentifierBytes"`
}

// Default returns the built-in constraints.
func Default() *Constraints {
	return &Constraints{
		Dependencies: map[string]string{
			"ethers": "6.13.2",
			"preact": "10.22.0",
		},
		DevDependencies: map[string]string{
			"typescript": "5.5.4",
			"vite":       "5.4.8",
		},
		SourceExtensions: []string{".ts", ".tsx", ".js", ".jsx", ".css", ".html"},
		AssetExtensions: []string{
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
			".woff", ".woff2", ".ttf", ".otf", ".json",
		},
		AbiExtensions: []string{".json"},
		StaticExtensions: []string{
			".html", ".htm", ".js", ".mjs", ".css", ".map",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
			".woff", ".woff2", ".ttf", ".otf",
			".json", ".txt", ".md", ".wasm",
		},
		ForbiddenPatterns: []string{
			"fetch(",
			"XMLHttpRequest",
			"new WebSocket",
			"http://",
			"https://",
			`import("http`,
			`import('http`,
		},
		IgnoreDirs:         []string{"node_modules", "dist", "build", "out", "coverage"},
		MaxIdentifierBytes: 4096,
	}
}

// Load returns the default constraints, overridden by the config file at
// path when non-empty. Override files may be YAML or JSON; list values
// replace their defaults, map values are merged over them.
func Load(path string) (*Constraints, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy override %s: %w", path, err)
	}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("parse policy override %s: %w", path, err)
	}
	if c.MaxIdentifierBytes <= 0 {
		return nil, fmt.Errorf("policy override %s: maxIdentifierBytes must be positive", path)
	}
	return c, nil
}

// IgnoreSet returns the top-level ignore directories as a lookup set.
func (c *Constraints) IgnoreSet() map[string]bool {
	set := make(map[string]bool, len(c.IgnoreDirs))
	for _, name := range c.IgnoreDirs {
		set[name] = true
	}
	return set
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
