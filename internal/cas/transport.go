package cas

import (
	"io"
	"net/http"
	"strings"
)

// HTTPFetcher issues a single HTTP request. Store and gateway clients only
// ever build full requests, so one method suffices.
type HTTPFetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// RealHTTPFetcher wraps http.Client for production use
type RealHTTPFetcher struct {
	client *http.Client
}

// NewRealHTTPFetcher creates a production HTTP fetcher
func NewRealHTTPFetcher(client *http.Client) HTTPFetcher {
	return &RealHTTPFetcher{client: client}
}

func (f *RealHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// MockHTTPFetcher serves canned responses keyed by full request URL and
// records every URL it is asked for, in order. Unregistered URLs get a 404.
type MockHTTPFetcher struct {
	responses map[string]mockResponse
	errors    map[string]error
	requests  []string
}

type mockResponse struct {
	status int
	body   string
}

// NewMockHTTPFetcher creates a mock HTTP fetcher
func NewMockHTTPFetcher() *MockHTTPFetcher {
	return &MockHTTPFetcher{
		responses: make(map[string]mockResponse),
		errors:    make(map[string]error),
	}
}

// AddResponse registers a canned response for a URL
func (m *MockHTTPFetcher) AddResponse(rawURL string, statusCode int, body string) {
	m.responses[rawURL] = mockResponse{status: statusCode, body: body}
}

// AddError registers a transport-level error for a URL
func (m *MockHTTPFetcher) AddError(rawURL string, err error) {
	m.errors[rawURL] = err
}

// Requests returns the URLs requested so far, in order.
func (m *MockHTTPFetcher) Requests() []string {
	return m.requests
}

func (m *MockHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	rawURL := req.URL.String()
	m.requests = append(m.requests, rawURL)
	if err, ok := m.errors[rawURL]; ok {
		return nil, err
	}
	canned, ok := m.responses[rawURL]
	if !ok {
		canned = mockResponse{status: http.StatusNotFound, body: "Not Found"}
	}
	return &http.Response{
		StatusCode: canned.status,
		Body:       io.NopCloser(strings.NewReader(canned.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}
