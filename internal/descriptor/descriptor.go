// Package descriptor loads and validates the in-bundle source descriptor
// (vibefi.json): the recursively validated addresses map and the optional
// IPFS read-capability grants.
package descriptor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/xeipuuv/gojsonschema"

	"github.com/vibefi/vibepack/internal/errs"
	"github.com/vibefi/vibepack/internal/layout"
)

//go:embed schema.json
var descriptorSchema string

// Representations a capability grant may request. Fixed enum; anything else
// is a policy violation.
var allowedRepresentations = map[string]bool{
	"raw":      true,
	"json":     true,
	"text":     true,
	"dag-json": true,
}

// Descriptor is the parsed vibefi.json.
type Descriptor struct {
	Addresses    map[string]interface{} `json:"addresses"`
	Capabilities *Capabilities          `json:"capabilities,omitempty"`
}

// Capabilities holds declared read-permission grants, keyed by transport.
type Capabilities struct {
	IPFS *IPFSCapabilities `json:"ipfs,omitempty"`
}

// IPFSCapabilities lists content the published application may read.
type IPFSCapabilities struct {
	Allow []Grant `json:"allow,omitempty"`
}

// Grant is one scoped read permission.
type Grant struct {
	CID      string   `json:"cid,omitempty"`
	Paths    []string `json:"paths"`
	As       []string `json:"as"`
	MaxBytes *int64   `json:"maxBytes,omitempty"`
}

// Load reads, schema-checks, and fully validates the descriptor in dir.
func Load(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, layout.DescriptorFile)
	raw, err := os.ReadFile(path) // #nosec G304 -- path is a fixed name under the caller's source dir
	if err != nil {
		return nil, errs.Structural("read descriptor %s: %v", path, err)
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errs.Policy("descriptor %s is not valid JSON: %v", layout.DescriptorFile, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func validateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(descriptorSchema),
		gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errs.Policy("descriptor %s is not valid JSON: %v", layout.DescriptorFile, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return errs.Policy("descriptor %s: %s", layout.DescriptorFile, first.String())
	}
	return nil
}

// Validate checks the addresses map and any capability grants. Schema
// validation has already established the coarse shape; this pass enforces
// what the schema cannot express: checksummed addresses, glob syntax, the
// representation enum, and strictly positive maxBytes.
func (d *Descriptor) Validate() error {
	if err := validateAddresses(d.Addresses, "addresses"); err != nil {
		return err
	}
	if d.Capabilities == nil || d.Capabilities.IPFS == nil {
		return nil
	}
	for i, grant := range d.Capabilities.IPFS.Allow {
		if err := grant.validate(fmt.Sprintf("capabilities.ipfs.allow[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (g Grant) validate(field string) error {
	if len(g.Paths) == 0 {
		return errs.Policy("%s.paths must not be empty", field)
	}
	for j, pattern := range g.Paths {
		if pattern == "" {
			return errs.Policy("%s.paths[%d] must not be empty", field, j)
		}
		if !doublestar.ValidatePattern(pattern) {
			return errs.Policy("%s.paths[%d]: invalid glob pattern %q", field, j, pattern)
		}
	}
	if len(g.As) == 0 {
		return errs.Policy("%s.as must not be empty", field)
	}
	for j, rep := range g.As {
		if !allowedRepresentations[rep] {
			return errs.Policy("%s.as[%d]: unknown representation %q (allowed: %s)",
				field, j, rep, representationList())
		}
	}
	if g.MaxBytes != nil && *g.MaxBytes <= 0 {
		return errs.Policy("%s.maxBytes must be strictly positive, got %d", field, *g.MaxBytes)
	}
	return nil
}

func representationList() string {
	reps := make([]string, 0, len(allowedRepresentations))
	for rep := range allowedRepresentations {
		reps = append(reps, rep)
	}
	sort.Strings(reps)
	out := ""
	for i, rep := range reps {
		if i > 0 {
			out += ", "
		}
		out += rep
	}
	return out
}

// validateAddresses recursively checks an addresses value. Strings must be
// checksummed hex addresses; numbers pass as metadata; objects and arrays
// recurse; anything else is malformed.
func validateAddresses(value interface{}, field string) error {
	switch v := value.(type) {
	case string:
		if err := ValidateChecksumAddress(v); err != nil {
			return errs.Policy("%s: %v", field, err)
		}
		return nil
	case float64, json.Number:
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := validateAddresses(v[k], field+"."+k); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		for i, elem := range v {
			if err := validateAddresses(elem, fmt.Sprintf("%s[%d]", field, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.Policy("%s: unsupported value type %T", field, value)
	}
}
