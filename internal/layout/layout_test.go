package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vibefi/vibepack/internal/errs"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func constrainedFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, d := range []string{SrcDir, AssetsDir, AbisDir} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	writeFile(t, dir, DescriptorFile, `{"addresses":{}}`)
	writeFile(t, dir, EntryFile, "<html></html>")
	writeFile(t, dir, PackageFile, `{}`)
	return dir
}

func TestDetectConstrained(t *testing.T) {
	dir := constrainedFixture(t)
	l, err := Detect(dir)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if l != Constrained {
		t.Errorf("layout = %v, want Constrained", l)
	}
}

func TestDetectStaticHtml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DescriptorFile, `{"addresses":{}}`)
	writeFile(t, dir, EntryFile, "<html></html>")
	l, err := Detect(dir)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if l != StaticHtml {
		t.Errorf("layout = %v, want StaticHtml", l)
	}
}

func TestDetectPrefersConstrained(t *testing.T) {
	// A constrained directory also satisfies the static-html requirements;
	// the larger shape must win.
	dir := constrainedFixture(t)
	l, err := Detect(dir)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if l != Constrained {
		t.Errorf("layout = %v, want Constrained", l)
	}
}

func TestDetectRequiredEntryKind(t *testing.T) {
	// src exists but as a file, so the constrained shape must not match.
	dir := t.TempDir()
	writeFile(t, dir, SrcDir, "not a directory")
	writeFile(t, dir, DescriptorFile, `{"addresses":{}}`)
	writeFile(t, dir, EntryFile, "<html></html>")
	writeFile(t, dir, PackageFile, `{}`)
	l, err := Detect(dir)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if l != StaticHtml {
		t.Errorf("layout = %v, want StaticHtml fallback", l)
	}
}

func TestDetectNoMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.txt", "nothing here")
	_, err := Detect(dir)
	if err == nil {
		t.Fatal("expected detection failure")
	}
	if !errs.IsStructural(err) {
		t.Errorf("expected structural error, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{SrcDir, AssetsDir, AbisDir, DescriptorFile, EntryFile, PackageFile} {
		if !strings.Contains(msg, want) {
			t.Errorf("error does not enumerate %q: %s", want, msg)
		}
	}
}

func TestWalkTreeSkipsDotfilesEverywhere(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, ".hidden", "x")
	writeFile(t, dir, "sub/.hidden", "x")
	writeFile(t, dir, "sub/b.txt", "b")
	writeFile(t, dir, ".git/config", "x")

	var got []string
	err := WalkTree(dir, nil, func(rel, abs string) error {
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkTree failed: %v", err)
	}
	want := []string{"a.txt", "sub/b.txt"}
	if len(got) != len(want) {
		t.Fatalf("walked %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("walked[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkTreeIgnoresOnlyAtRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "node_modules/dep/index.js", "x")
	writeFile(t, dir, "domains/node_modules/kept.txt", "kept")
	writeFile(t, dir, "index.html", "<html></html>")

	var got []string
	err := WalkTree(dir, map[string]bool{"node_modules": true}, func(rel, abs string) error {
		got = append(got, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkTree failed: %v", err)
	}
	foundNested := false
	for _, rel := range got {
		if strings.HasPrefix(rel, "node_modules/") {
			t.Errorf("top-level ignored directory was walked: %s", rel)
		}
		if rel == "domains/node_modules/kept.txt" {
			foundNested = true
		}
	}
	if !foundNested {
		t.Error("nested directory sharing an ignored name was skipped")
	}
}
