package bundle

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vibefi/vibepack/internal/descriptor"
	"github.com/vibefi/vibepack/internal/errs"
	"github.com/vibefi/vibepack/internal/layout"
	"github.com/vibefi/vibepack/pkg/safeio"
)

// ManifestEntry describes one bundled file.
type ManifestEntry struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// ConstraintsSummary records the policy actually enforced during packaging.
// Constrained bundles carry the full allowlists; static-html bundles carry
// only the extension allowlist.
type ConstraintsSummary struct {
	Dependencies      map[string]string `json:"dependencies,omitempty"`
	DevDependencies   map[string]string `json:"devDependencies,omitempty"`
	SourceExtensions  []string          `json:"sourceExtensions,omitempty"`
	AssetExtensions   []string          `json:"assetExtensions,omitempty"`
	AbiExtensions     []string          `json:"abiExtensions,omitempty"`
	ForbiddenPatterns []string          `json:"forbiddenPatterns,omitempty"`
	AllowedExtensions []string          `json:"allowedExtensions,omitempty"`
}

// Manifest is the canonical description of a bundle. Its canonical JSON
// serialization is the hashing input in offline addressing mode.
type Manifest struct {
	Name         string                   `json:"name"`
	Version      string                   `json:"version"`
	Description  string                   `json:"description"`
	CreatedAt    string                   `json:"createdAt"`
	Layout       string                   `json:"layout"`
	Capabilities *descriptor.Capabilities `json:"capabilities,omitempty"`
	Constraints  ConstraintsSummary       `json:"constraints"`
	Entry        string                   `json:"entry"`
	Files        []ManifestEntry          `json:"files"`
}

// Meta is the caller-supplied bundle metadata.
type Meta struct {
	Name        string
	Version     string
	Description string
}

// BuildOptions configures manifest assembly and output emission.
type BuildOptions struct {
	OutDir           string
	SuppressManifest bool
	Now              func() time.Time
}

// Build computes sizes and sorted relative paths for the collected entries,
// assembles the manifest, rebuilds the output directory from scratch, copies
// every in-scope file, and writes manifest.json unless suppressed.
func Build(entries []Entry, meta Meta, l layout.Layout, caps *descriptor.Capabilities, summary ConstraintsSummary, opts BuildOptions) (*Manifest, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	files := make([]ManifestEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := os.Stat(entry.Abs)
		if err != nil {
			return nil, errs.Structural("stat %s: %v", entry.Rel, err)
		}
		files = append(files, ManifestEntry{Path: entry.Rel, Bytes: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for i := 1; i < len(files); i++ {
		if files[i].Path == files[i-1].Path {
			return nil, errs.Structural("duplicate bundle path %s", files[i].Path)
		}
	}

	m := &Manifest{
		Name:         meta.Name,
		Version:      meta.Version,
		Description:  meta.Description,
		CreatedAt:    now().UTC().Format(time.RFC3339),
		Layout:       l.String(),
		Capabilities: caps,
		Constraints:  summary,
		Entry:        layout.EntryFile,
		Files:        files,
	}

	if opts.OutDir == "" {
		return m, nil
	}

	// The output directory is rebuilt from scratch every run so stale files
	// from prior runs can never leak into the addressed tree.
	if err := os.RemoveAll(opts.OutDir); err != nil {
		return nil, fmt.Errorf("clear output dir %s: %w", opts.OutDir, err)
	}
	if err := os.MkdirAll(opts.OutDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", opts.OutDir, err)
	}

	for _, entry := range entries {
		if err := copyFile(entry.Abs, opts.OutDir, entry.Rel); err != nil {
			return nil, err
		}
	}

	if !opts.SuppressManifest {
		raw, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode manifest: %w", err)
		}
		if err := safeio.WriteFileContained(opts.OutDir, layout.ManifestFile, append(raw, '\n')); err != nil {
			return nil, fmt.Errorf("write manifest: %w", err)
		}
	}
	return m, nil
}

func copyFile(src, outDir, rel string) error {
	dest, err := safeio.ResolveContained(outDir, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}
	in, err := os.Open(src) // #nosec G304 -- src comes from the collected source tree
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest) // #nosec G304 -- dest containment checked above
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return out.Close()
}
