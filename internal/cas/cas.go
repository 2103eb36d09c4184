// Package cas computes root identifiers for finished bundles, either through
// a content-addressable store's add endpoint or through a local digest of the
// canonical manifest. The two address spaces are disjoint: offline
// identifiers carry a distinguishing prefix and are never fetchable.
package cas

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"time"

	"github.com/vibefi/vibepack/internal/errs"
	"github.com/vibefi/vibepack/internal/layout"
	"github.com/vibefi/vibepack/pkg/canonjson"
)

// Mode discriminates the two addressing address spaces.
type Mode string

const (
	ModeNetwork Mode = "network"
	ModeOffline Mode = "offline"
)

// OfflinePrefix marks offline-mode identifiers. Retrieval rejects them
// without touching the network.
const OfflinePrefix = "jcs256:"

// Result is a discriminated addressing outcome. Callers must not compare
// identifiers across modes.
type Result struct {
	Mode Mode
	ID   string
	// Size is the store-reported cumulative size (network mode only).
	Size string
}

// AddOptions select pinning behavior for the store add call.
type AddOptions struct {
	// OnlyHash computes the identifier without storing content.
	OnlyHash bool
	// Pin requests that the store pin the uploaded tree.
	Pin bool
}

// addResponseLine is one line of the store's newline-delimited JSON reply.
type addResponseLine struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Client talks to a content-addressable store's HTTP API.
type Client struct {
	apiURL  string
	fetcher HTTPFetcher
	maxID   int
}

// NewClient creates a store client for the given API base URL
// (e.g. http://127.0.0.1:5001). maxIdentifierBytes bounds accepted
// identifiers in both directions.
func NewClient(apiURL string, maxIdentifierBytes int) *Client {
	httpClient := &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
	return NewClientWithFetcher(apiURL, maxIdentifierBytes, NewRealHTTPFetcher(httpClient))
}

// NewClientWithFetcher creates a store client with injectable HTTP for testing
func NewClientWithFetcher(apiURL string, maxIdentifierBytes int, fetcher HTTPFetcher) *Client {
	return &Client{apiURL: apiURL, fetcher: fetcher, maxID: maxIdentifierBytes}
}

// AddDirectory submits dir recursively, wrapped in a directory, with fixed
// hash-versioning parameters, and returns the top-level identifier. The
// store reply is newline-delimited JSON; the wrapping directory arrives
// last.
func (c *Client) AddDirectory(ctx context.Context, dir string, opts AddOptions) (Result, error) {
	body, contentType, err := multipartDirectory(dir)
	if err != nil {
		return Result{}, err
	}

	params := url.Values{}
	params.Set("recursive", "true")
	params.Set("wrap-with-directory", "true")
	params.Set("cid-version", "1")
	params.Set("hash", "sha2-256")
	if opts.OnlyHash {
		params.Set("only-hash", "true")
	} else {
		params.Set("pin", boolString(opts.Pin))
	}
	endpoint := fmt.Sprintf("%s/api/v0/add?%s", c.apiURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, errs.Transport("build store add request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.fetcher.Do(req)
	if err != nil {
		return Result{}, errs.Wrap(err, errs.CategoryTransport, "store add to %s failed", c.apiURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, errs.Transport("store add to %s returned status %d", c.apiURL, resp.StatusCode)
	}

	var last addResponseLine
	seen := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &last); err != nil {
			return Result{}, errs.Transport("store add reply is not NDJSON: %v", err)
		}
		seen = true
	}
	if err := scanner.Err(); err != nil {
		return Result{}, errs.Wrap(err, errs.CategoryTransport, "read store add reply")
	}
	if !seen || last.Hash == "" {
		return Result{}, errs.Transport("store add reply from %s carried no identifier", c.apiURL)
	}

	if err := checkLimit(last.Hash, c.maxID); err != nil {
		return Result{}, err
	}
	return Result{Mode: ModeNetwork, ID: last.Hash, Size: last.Size}, nil
}

// multipartDirectory encodes every file in dir as a multipart part whose
// filename is the forward-slash relative path, the form the store's add
// endpoint expects for a recursive directory upload.
func multipartDirectory(dir string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	err := layout.WalkTree(dir, nil, func(rel, abs string) error {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="%s"`, url.QueryEscape(rel)))
		header.Set("Content-Type", "application/octet-stream")
		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create part for %s: %w", rel, err)
		}
		raw, err := os.ReadFile(abs) // #nosec G304 -- path comes from the walked output tree
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		if _, err := part.Write(raw); err != nil {
			return fmt.Errorf("write part for %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// Offline computes the offline-mode identifier: a sha-256 digest of the
// manifest's canonical (key-sorted) JSON serialization, with no network I/O.
func Offline(manifest interface{}, maxIdentifierBytes int) (Result, error) {
	digest, err := canonjson.DigestValue(manifest)
	if err != nil {
		return Result{}, fmt.Errorf("canonicalize manifest: %w", err)
	}
	id := OfflinePrefix + digest
	if err := checkLimit(id, maxIdentifierBytes); err != nil {
		return Result{}, err
	}
	return Result{Mode: ModeOffline, ID: id}, nil
}

// IsOfflineID reports whether id belongs to the offline address space.
func IsOfflineID(id string) bool {
	return len(id) > len(OfflinePrefix) && id[:len(OfflinePrefix)] == OfflinePrefix
}

func checkLimit(id string, max int) error {
	if max > 0 && len(id) > max {
		return errs.SizeLimit("identifier length %d exceeds maximum %d bytes", len(id), max)
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
