package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/vibefi/vibepack/internal/bundle"
	"github.com/vibefi/vibepack/internal/cas"
	"github.com/vibefi/vibepack/internal/errs"
)

// fakeStore implements the add endpoint with a deterministic identifier
// derived from the uploaded part names and contents, so recomputing over an
// identical tree yields an identical identifier and any altered byte yields
// a different one.
func fakeStore(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/add" {
			http.NotFound(w, r)
			return
		}
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type part struct {
			name string
			body []byte
		}
		var parts []part
		for {
			p, err := reader.NextPart()
			if err != nil {
				break
			}
			raw, _ := io.ReadAll(p)
			name, _ := url.QueryUnescape(p.FileName())
			parts = append(parts, part{name: name, body: raw})
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i].name < parts[j].name })
		h := sha256.New()
		for _, p := range parts {
			fmt.Fprintf(h, "%s\x00%d\x00", p.name, len(p.body))
			h.Write(p.body)
		}
		id := "bafyfake" + hex.EncodeToString(h.Sum(nil))[:16]
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"Name":"","Hash":"%s","Size":"1"}`+"\n", id)
	}))
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// publishFixture builds an output tree with a manifest, computes its
// identifier against the fake store, and serves it over a fake gateway.
func publishFixture(t *testing.T, store *httptest.Server, mutate func(files map[string]string)) (string, *httptest.Server) {
	t.Helper()
	files := map[string]string{
		"index.html": "<html><body>app</body></html>",
		"app.js":     "console.log(1)",
	}
	manifest := bundle.Manifest{
		Name:      "demo",
		Version:   "1.0.0",
		CreatedAt: "2026-01-02T03:04:05Z",
		Layout:    "static-html",
		Entry:     "index.html",
		Files: []bundle.ManifestEntry{
			{Path: "app.js", Bytes: int64(len(files["app.js"]))},
			{Path: "index.html", Bytes: int64(len(files["index.html"]))},
		},
	}
	manifestRaw, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	files["manifest.json"] = string(manifestRaw)

	outDir := t.TempDir()
	writeTree(t, outDir, files)
	client := cas.NewClient(store.URL, 4096)
	res, err := client.AddDirectory(context.Background(), outDir, cas.AddOptions{OnlyHash: true})
	if err != nil {
		t.Fatalf("publish addressing failed: %v", err)
	}

	if mutate != nil {
		mutate(files)
	}
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/ipfs/" + res.ID + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		rel := strings.TrimPrefix(r.URL.Path, prefix)
		content, ok := files[rel]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	return res.ID, gatewaySrv
}

func TestFetchVerifyRoundTrip(t *testing.T) {
	store := fakeStore(t)
	defer store.Close()
	id, gatewaySrv := publishFixture(t, store, nil)
	defer gatewaySrv.Close()

	outDir := filepath.Join(t.TempDir(), "fetched")
	client := New(gatewaySrv.URL, cas.NewClient(store.URL, 4096))
	report, err := client.Fetch(context.Background(), id, outDir, true)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !report.Verified {
		t.Error("round-trip did not verify")
	}
	if report.Recomputed != id {
		t.Errorf("recomputed = %s, want %s", report.Recomputed, id)
	}
	if report.Files != 2 {
		t.Errorf("files = %d, want 2", report.Files)
	}
	for _, rel := range []string{"index.html", "app.js", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(outDir, rel)); err != nil {
			t.Errorf("fetched tree missing %s: %v", rel, err)
		}
	}
}

func TestFetchTamperDetection(t *testing.T) {
	store := fakeStore(t)
	defer store.Close()
	id, gatewaySrv := publishFixture(t, store, func(files map[string]string) {
		files["app.js"] = "console.log(2)" // single-byte alteration
	})
	defer gatewaySrv.Close()

	outDir := filepath.Join(t.TempDir(), "fetched")
	client := New(gatewaySrv.URL, cas.NewClient(store.URL, 4096))
	_, err := client.Fetch(context.Background(), id, outDir, true)
	if err == nil {
		t.Fatal("tampered content verified successfully")
	}
	if !errs.IsIntegrity(err) {
		t.Errorf("expected integrity error, got %v", err)
	}
	// the partial directory stays in place as diagnostic evidence
	if _, statErr := os.Stat(filepath.Join(outDir, "app.js")); statErr != nil {
		t.Error("partial download removed after integrity failure")
	}
}

func TestFetchSkipVerify(t *testing.T) {
	store := fakeStore(t)
	defer store.Close()
	id, gatewaySrv := publishFixture(t, store, func(files map[string]string) {
		files["app.js"] = "tampered"
	})
	defer gatewaySrv.Close()

	outDir := filepath.Join(t.TempDir(), "fetched")
	client := New(gatewaySrv.URL, nil)
	report, err := client.Fetch(context.Background(), id, outDir, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if report.Verified {
		t.Error("report claims verification that never ran")
	}
}

func TestFetchRejectsOfflineIdentifier(t *testing.T) {
	requests := 0
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.NotFound(w, r)
	}))
	defer gatewaySrv.Close()

	client := New(gatewaySrv.URL, nil)
	_, err := client.Fetch(context.Background(), "jcs256:deadbeef", t.TempDir(), false)
	if err == nil {
		t.Fatal("offline identifier accepted for retrieval")
	}
	if requests != 0 {
		t.Error("network was touched for an offline identifier")
	}
}

func TestFetchManifestNotFound(t *testing.T) {
	gatewaySrv := httptest.NewServer(http.NotFoundHandler())
	defer gatewaySrv.Close()

	client := New(gatewaySrv.URL, nil)
	_, err := client.Fetch(context.Background(), "bafymissing", t.TempDir(), false)
	if err == nil {
		t.Fatal("expected fetch failure")
	}
	if !errs.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestFetchMalformedManifest(t *testing.T) {
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "manifest.json") {
			_, _ = w.Write([]byte(`{"files": []}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer gatewaySrv.Close()

	client := New(gatewaySrv.URL, nil)
	_, err := client.Fetch(context.Background(), "bafyempty", t.TempDir(), false)
	if err == nil {
		t.Fatal("expected rejection of empty file list")
	}
}

func TestFetchManifestNotJSON(t *testing.T) {
	mock := cas.NewMockHTTPFetcher()
	manifestURL := "http://gw.test/ipfs/bafygarbled/manifest.json"
	mock.AddResponse(manifestURL, http.StatusOK, "<html>interception page</html>")

	client := NewWithFetcher("http://gw.test", nil, mock)
	_, err := client.Fetch(context.Background(), "bafygarbled", t.TempDir(), false)
	if err == nil {
		t.Fatal("garbled manifest accepted")
	}
	if !errs.IsTransport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
	if got := mock.Requests(); len(got) != 1 || got[0] != manifestURL {
		t.Errorf("requests = %v, want only the manifest fetch", got)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	store := fakeStore(t)
	defer store.Close()
	id, gatewaySrv := publishFixture(t, store, nil)
	defer gatewaySrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(gatewaySrv.URL, cas.NewClient(store.URL, 4096))
	report, err := client.Fetch(ctx, id, filepath.Join(t.TempDir(), "fetched"), true)
	if err == nil {
		t.Fatal("cancelled fetch reported success")
	}
	if report != nil && report.Verified {
		t.Error("cancelled fetch reported verified")
	}
}

func TestFetchEscapingPathRejected(t *testing.T) {
	manifest := `{"files":[{"path":"../escape.txt","bytes":1}]}`
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "manifest.json") {
			_, _ = w.Write([]byte(manifest))
			return
		}
		_, _ = w.Write([]byte("x"))
	}))
	defer gatewaySrv.Close()

	outDir := filepath.Join(t.TempDir(), "fetched")
	client := New(gatewaySrv.URL, nil)
	if _, err := client.Fetch(context.Background(), "bafyevil", outDir, false); err == nil {
		t.Fatal("escaping manifest path accepted")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(outDir), "escape.txt")); err == nil {
		t.Error("file written outside the output directory")
	}
}
