// Package testutil provides testing utilities for the census.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Paths served by the mock.
const (
	PathRepositories = "/repositories"
	PathGraphQL      = "/graphql"
	PathSearch       = "/search/repositories"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable in-memory GitHub serving the listing,
// GraphQL nodes and search APIs over a fixed set of repository ids.
type MockGitHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	ids      []int64
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// missing ids resolve to null, foreign ids resolve to a non-repository node.
	missing map[int64]bool
	foreign map[int64]bool

	// queued responses served before the normal handler, per path.
	queued map[string][]MockResponse

	totalCount int64

	// Tracking
	requestCount map[string]int
	listingSince []int64
	lookupSizes  []int
}

// NewMockGitHub creates a mock serving the given repository ids.
func NewMockGitHub(ids []int64) *MockGitHub {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mock := &MockGitHub{
		ids:          sorted,
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		missing:      make(map[int64]bool),
		foreign:      make(map[int64]bool),
		queued:       make(map[string][]MockResponse),
		totalCount:   int64(len(sorted)),
		requestCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))

	return mock
}

// DenseIDs returns the ids 1..n.
func DenseIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

// NodeID is the opaque node identifier the mock assigns to a repository id.
func NodeID(id int64) string {
	return "R_" + strconv.FormatInt(id, 10)
}

// FullName is the owner/name the mock assigns to a repository id.
func FullName(id int64) string {
	return fmt.Sprintf("owner%d/repo%d", id, id)
}

// Stars is the stargazer count the mock assigns to a repository id.
func Stars(id int64) int {
	return int(id % 97)
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// GraphQLURL returns the mock GraphQL endpoint.
func (m *MockGitHub) GraphQLURL() string {
	return m.server.URL + PathGraphQL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Enqueue serves resp for the next request to path, ahead of the normal
// handler. Use it to inject throttling or failures.
func (m *MockGitHub) Enqueue(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[path] = append(m.queued[path], resp)
}

// SetMissing makes the lookup return null for the given ids.
func (m *MockGitHub) SetMissing(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.missing[id] = true
	}
}

// SetForeign makes the lookup return a non-repository node for the given ids.
func (m *MockGitHub) SetForeign(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.foreign[id] = true
	}
}

// SetTotalCount sets the search API total_count.
func (m *MockGitHub) SetTotalCount(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCount = n
}

// GetRequestCount returns the number of requests made to path.
func (m *MockGitHub) GetRequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount[path]
}

// ListingCursors returns the since values of all listing requests, in order.
func (m *MockGitHub) ListingCursors() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.listingSince...)
}

// LookupSizes returns the number of ids in each GraphQL request, in order.
func (m *MockGitHub) LookupSizes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.lookupSizes...)
}

func (m *MockGitHub) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount[r.URL.Path]++
	var queued *MockResponse
	if q := m.queued[r.URL.Path]; len(q) > 0 {
		queued = &q[0]
		m.queued[r.URL.Path] = q[1:]
	}
	handler, exists := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if queued != nil {
		writeMockResponse(w, *queued)
		return
	}

	if exists {
		handler(w, r)
		return
	}

	switch r.URL.Path {
	case PathRepositories:
		m.serveListing(w, r)
	case PathGraphQL:
		m.serveGraphQL(w, r)
	case PathSearch:
		m.serveSearch(w)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockGitHub) serveListing(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		since = 0
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage <= 0 {
		perPage = 30
	}

	m.mu.Lock()
	m.listingSince = append(m.listingSince, since)
	m.mu.Unlock()

	start := sort.Search(len(m.ids), func(i int) bool { return m.ids[i] > since })
	end := start + perPage
	if end > len(m.ids) {
		end = len(m.ids)
	}

	page := make([]map[string]any, 0, end-start)
	for _, id := range m.ids[start:end] {
		page = append(page, map[string]any{
			"id":        id,
			"node_id":   NodeID(id),
			"full_name": FullName(id),
		})
	}

	writeJSON(w, http.StatusOK, page)
}

func (m *MockGitHub) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables struct {
			IDs []string `json:"ids"`
		} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.lookupSizes = append(m.lookupSizes, len(req.Variables.IDs))
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]any, 0, len(req.Variables.IDs))
	for _, nodeID := range req.Variables.IDs {
		id, err := strconv.ParseInt(strings.TrimPrefix(nodeID, "R_"), 10, 64)
		switch {
		case err != nil || m.missing[id]:
			nodes = append(nodes, nil)
		case m.foreign[id]:
			nodes = append(nodes, map[string]any{"__typename": "User", "id": nodeID})
		default:
			created := time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour)
			nodes = append(nodes, map[string]any{
				"__typename":      "Repository",
				"id":              nodeID,
				"databaseId":      id,
				"nameWithOwner":   FullName(id),
				"stargazerCount":  Stars(id),
				"isFork":          id%5 == 0,
				"isArchived":      id%7 == 0,
				"isPrivate":       false,
				"createdAt":       created.Format(time.RFC3339),
				"pushedAt":        created.Add(24 * time.Hour).Format(time.RFC3339),
				"primaryLanguage": map[string]any{"name": "Go"},
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"nodes": nodes}})
}

func (m *MockGitHub) serveSearch(w http.ResponseWriter) {
	m.mu.RLock()
	total := m.totalCount
	m.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"total_count": total, "items": []any{}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-RateLimit-Remaining", "4999")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 403 throttled response with Retry-After.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message": "API rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":           strconv.Itoa(retryAfterSeconds),
			"X-RateLimit-Remaining": "0",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 502 Bad Gateway response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       `{"message": "Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>not json</html>`,
	}
}
