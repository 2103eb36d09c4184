// Package pipeline wires the packaging stages together: detect, validate,
// collect, build, address. Layout dispatch happens once, through a strategy
// table, and everything downstream is layout-agnostic.
package pipeline

import (
	"context"

	"github.com/vibefi/vibepack/internal/bundle"
	"github.com/vibefi/vibepack/internal/cas"
	"github.com/vibefi/vibepack/internal/descriptor"
	"github.com/vibefi/vibepack/internal/errs"
	"github.com/vibefi/vibepack/internal/layout"
	"github.com/vibefi/vibepack/internal/policy"
	"github.com/vibefi/vibepack/pkg/logger"
)

// strategy binds a layout to its validation and collection behavior.
type strategy struct {
	validate func(c *policy.Constraints, dir string) error
	collect  func(c *policy.Constraints, dir string) ([]bundle.Entry, error)
	summary  func(c *policy.Constraints) bundle.ConstraintsSummary
}

var strategies = map[layout.Layout]strategy{
	layout.Constrained: {
		validate: func(c *policy.Constraints, dir string) error {
			return c.Validate(dir, layout.Constrained)
		},
		collect: func(c *policy.Constraints, dir string) ([]bundle.Entry, error) {
			return bundle.Collect(dir, layout.Constrained, nil)
		},
		summary: func(c *policy.Constraints) bundle.ConstraintsSummary {
			return bundle.ConstraintsSummary{
				Dependencies:      c.Dependencies,
				DevDependencies:   c.DevDependencies,
				SourceExtensions:  c.SourceExtensions,
				AssetExtensions:   c.AssetExtensions,
				AbiExtensions:     c.AbiExtensions,
				ForbiddenPatterns: c.ForbiddenPatterns,
			}
		},
	},
	layout.StaticHtml: {
		validate: func(c *policy.Constraints, dir string) error {
			return c.Validate(dir, layout.StaticHtml)
		},
		collect: func(c *policy.Constraints, dir string) ([]bundle.Entry, error) {
			return bundle.Collect(dir, layout.StaticHtml, c.IgnoreSet())
		},
		summary: func(c *policy.Constraints) bundle.ConstraintsSummary {
			return bundle.ConstraintsSummary{
				AllowedExtensions: c.StaticExtensions,
			}
		},
	},
}

// PackOptions configures one packaging run.
type PackOptions struct {
	SourceDir string
	OutDir    string
	Meta      bundle.Meta
	// PolicyFile overrides the built-in constraints when non-empty.
	PolicyFile string
	// Offline selects local manifest addressing instead of the store add.
	Offline bool
	// Pin asks the store to pin the uploaded tree (network mode only).
	Pin bool
	// OnlyHash computes the identifier without storing (network mode only).
	OnlyHash bool
	// StoreAPI is the content-store API base URL (network mode only).
	StoreAPI string
	// SuppressManifest skips writing manifest.json into the output tree.
	SuppressManifest bool
}

// PackResult is the outcome of a successful packaging run.
type PackResult struct {
	Layout   layout.Layout
	Manifest *bundle.Manifest
	Address  cas.Result
}

// Inspection is the outcome of a validation-only run.
type Inspection struct {
	Layout     layout.Layout
	Descriptor *descriptor.Descriptor
	Files      int
}

// Inspect detects and fully validates a source directory without writing any
// output or touching the network.
func Inspect(sourceDir string, policyFile string) (*Inspection, error) {
	cons, err := policy.Load(policyFile)
	if err != nil {
		return nil, err
	}
	l, desc, entries, err := validateAndCollect(sourceDir, cons)
	if err != nil {
		return nil, err
	}
	return &Inspection{Layout: l, Descriptor: desc, Files: len(entries)}, nil
}

// Pack runs the full publish pipeline and returns the root identifier.
// Validation completes before anything is written; a failed run never
// replaces an existing output directory.
func Pack(ctx context.Context, opts PackOptions) (*PackResult, error) {
	cons, err := policy.Load(opts.PolicyFile)
	if err != nil {
		return nil, err
	}

	l, desc, entries, err := validateAndCollect(opts.SourceDir, cons)
	if err != nil {
		return nil, err
	}
	logger.Info("bundle validated",
		logger.String("layout", l.String()),
		logger.Int("files", len(entries)))

	strat := strategies[l]
	manifest, err := bundle.Build(entries, opts.Meta, l, desc.Capabilities, strat.summary(cons), bundle.BuildOptions{
		OutDir:           opts.OutDir,
		SuppressManifest: opts.SuppressManifest,
	})
	if err != nil {
		return nil, err
	}

	var address cas.Result
	if opts.Offline {
		address, err = cas.Offline(manifest, cons.MaxIdentifierBytes)
	} else {
		client := cas.NewClient(opts.StoreAPI, cons.MaxIdentifierBytes)
		address, err = client.AddDirectory(ctx, opts.OutDir, cas.AddOptions{
			OnlyHash: opts.OnlyHash,
			Pin:      opts.Pin,
		})
	}
	if err != nil {
		return nil, err
	}
	logger.Info("bundle addressed",
		logger.String("mode", string(address.Mode)),
		logger.String("id", address.ID))

	return &PackResult{Layout: l, Manifest: manifest, Address: address}, nil
}

func validateAndCollect(sourceDir string, cons *policy.Constraints) (layout.Layout, *descriptor.Descriptor, []bundle.Entry, error) {
	l, err := layout.Detect(sourceDir)
	if err != nil {
		return 0, nil, nil, err
	}
	strat, ok := strategies[l]
	if !ok {
		return 0, nil, nil, errs.Structural("no strategy for layout %s", l)
	}

	desc, err := descriptor.Load(sourceDir)
	if err != nil {
		return 0, nil, nil, err
	}
	if err := strat.validate(cons, sourceDir); err != nil {
		return 0, nil, nil, err
	}
	entries, err := strat.collect(cons, sourceDir)
	if err != nil {
		return 0, nil, nil, err
	}
	return l, desc, entries, nil
}
