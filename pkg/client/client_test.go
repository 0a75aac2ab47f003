package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/repo-star-census/internal/testutil"
	"github.com/Sternrassler/repo-star-census/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// recordingBackoff returns a backoff that records waits instead of sleeping.
func recordingBackoff(waits *[]time.Duration) *ratelimit.Backoff {
	b := ratelimit.NewBackoff(ratelimit.DefaultBackoffConfig(), zerolog.Nop())
	b.SetClock(nil, func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
	return b
}

func newTestClient(t *testing.T, mock *testutil.MockGitHub, waits *[]time.Duration) *Client {
	t.Helper()

	cfg := DefaultConfig("test-token")
	cfg.RESTBaseURL = mock.URL()
	cfg.GraphQLURL = mock.GraphQLURL()
	cfg.Timeout = 5 * time.Second
	if waits != nil {
		cfg.Backoff = recordingBackoff(waits)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError error
	}{
		{
			name:   "valid config",
			config: DefaultConfig("ghp_token"),
		},
		{
			name:        "missing token",
			config:      DefaultConfig(""),
			expectError: ErrTokenRequired,
		},
		{
			name:        "whitespace token",
			config:      DefaultConfig("   "),
			expectError: ErrTokenRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("New() error = %v, want %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestNew_InvalidTimeout(t *testing.T) {
	cfg := DefaultConfig("ghp_token")
	cfg.Timeout = 0

	if _, err := New(cfg); err == nil {
		t.Error("New() with zero timeout should fail")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("tok")

	if cfg.Token != "tok" {
		t.Errorf("Token = %q, want %q", cfg.Token, "tok")
	}
	if cfg.RESTBaseURL != DefaultRESTBaseURL {
		t.Errorf("RESTBaseURL = %q, want %q", cfg.RESTBaseURL, DefaultRESTBaseURL)
	}
	if cfg.GraphQLURL != DefaultGraphQLURL {
		t.Errorf("GraphQLURL = %q, want %q", cfg.GraphQLURL, DefaultGraphQLURL)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{http.StatusForbidden, ErrorClassRateLimit},
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusUnprocessableEntity, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusBadGateway, ErrorClassServer},
		{http.StatusNotModified, ErrorClassClient},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.expected {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestDo_HeadersSet(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := DefaultConfig("secret")
	cfg.RESTBaseURL = server.URL
	cfg.UserAgent = "TestApp/1.0.0"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := client.ListRepositories(context.Background(), 0, 1); err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}

	if got.Get("Authorization") != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", got.Get("Authorization"), "Bearer secret")
	}
	if got.Get("User-Agent") != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q, want %q", got.Get("User-Agent"), "TestApp/1.0.0")
	}
}

func TestListRepositories(t *testing.T) {
	mock := testutil.NewMockGitHub([]int64{3, 7, 8, 20, 21})
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		since   int64
		perPage int
		wantIDs []int64
	}{
		{name: "first page", since: 0, perPage: 2, wantIDs: []int64{3, 7}},
		{name: "cursor is exclusive", since: 7, perPage: 2, wantIDs: []int64{8, 20}},
		{name: "short last page", since: 20, perPage: 10, wantIDs: []int64{21}},
		{name: "past the end", since: 21, perPage: 10, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubs, err := client.ListRepositories(ctx, tt.since, tt.perPage)
			if err != nil {
				t.Fatalf("ListRepositories() error = %v", err)
			}
			if len(stubs) != len(tt.wantIDs) {
				t.Fatalf("len(stubs) = %d, want %d", len(stubs), len(tt.wantIDs))
			}
			for i, stub := range stubs {
				if stub.ID != tt.wantIDs[i] {
					t.Errorf("stubs[%d].ID = %d, want %d", i, stub.ID, tt.wantIDs[i])
				}
				if stub.NodeID != testutil.NodeID(stub.ID) {
					t.Errorf("stubs[%d].NodeID = %q, want %q", i, stub.NodeID, testutil.NodeID(stub.ID))
				}
				if stub.FullName != testutil.FullName(stub.ID) {
					t.Errorf("stubs[%d].FullName = %q", i, stub.FullName)
				}
			}
		})
	}
}

func TestListRepositories_InvalidPageSize(t *testing.T) {
	mock := testutil.NewMockGitHub(nil)
	defer mock.Close()

	client := newTestClient(t, mock, nil)

	for _, perPage := range []int{0, -1, MaxPerPage + 1} {
		if _, err := client.ListRepositories(context.Background(), 0, perPage); err == nil {
			t.Errorf("ListRepositories(per_page=%d) should fail", perPage)
		}
	}
}

func TestListRepositories_Failures(t *testing.T) {
	tests := []struct {
		name      string
		response  testutil.MockResponse
		wantClass ErrorClass
	}{
		{
			name:      "server error",
			response:  testutil.NewServerErrorResponse(),
			wantClass: ErrorClassServer,
		},
		{
			name:      "malformed body",
			response:  testutil.NewMalformedResponse(),
			wantClass: ErrorClassDecode,
		},
		{
			name:      "not found",
			response:  testutil.MockResponse{StatusCode: http.StatusNotFound},
			wantClass: ErrorClassClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGitHub(testutil.DenseIDs(10))
			defer mock.Close()
			mock.Enqueue(testutil.PathRepositories, tt.response)

			client := newTestClient(t, mock, nil)

			stubs, err := client.ListRepositories(context.Background(), 0, 5)
			if err == nil {
				t.Fatal("expected an error")
			}
			if stubs != nil {
				t.Errorf("stubs = %v, want nil", stubs)
			}
			if got := ClassOf(err); got != tt.wantClass {
				t.Errorf("ClassOf() = %q, want %q", got, tt.wantClass)
			}
		})
	}
}

func TestListRepositories_NetworkError(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.DenseIDs(3))
	client := newTestClient(t, mock, nil)
	mock.Close()

	_, err := client.ListRepositories(context.Background(), 0, 1)
	if got := ClassOf(err); got != ErrorClassNetwork {
		t.Errorf("ClassOf() = %q, want %q (err=%v)", got, ErrorClassNetwork, err)
	}
}

func TestListRepositories_RateLimited(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.DenseIDs(10))
	defer mock.Close()
	mock.Enqueue(testutil.PathRepositories, testutil.NewRateLimitResponse(5))

	var waits []time.Duration
	client := newTestClient(t, mock, &waits)
	ctx := context.Background()

	_, err := client.ListRepositories(ctx, 0, 5)
	if !IsRateLimited(err) {
		t.Fatalf("IsRateLimited() = false, err = %v", err)
	}
	if len(waits) != 1 || waits[0] != 5*time.Second {
		t.Errorf("backoff waits = %v, want [5s]", waits)
	}

	// The caller retries the same cursor after the backoff.
	stubs, err := client.ListRepositories(ctx, 0, 5)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if len(stubs) != 5 {
		t.Errorf("len(stubs) = %d, want 5", len(stubs))
	}
}

func TestExists(t *testing.T) {
	mock := testutil.NewMockGitHub([]int64{5, 10, 40})
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	ctx := context.Background()

	tests := []struct {
		id   int64
		want bool
	}{
		{0, true},
		{1, true},
		{10, true},
		{11, true},
		{40, true},
		{41, false},
		{1000, false},
	}

	for _, tt := range tests {
		if got := client.Exists(ctx, tt.id); got != tt.want {
			t.Errorf("Exists(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestExists_FailureIsNegative(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.DenseIDs(100))
	defer mock.Close()
	mock.Enqueue(testutil.PathRepositories, testutil.NewServerErrorResponse())

	client := newTestClient(t, mock, nil)

	if client.Exists(context.Background(), 1) {
		t.Error("Exists() should be false when the probe fails")
	}
}

func TestLookupNodes(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.DenseIDs(10))
	defer mock.Close()
	mock.SetMissing(2)
	mock.SetForeign(3)

	client := newTestClient(t, mock, nil)

	ids := []string{testutil.NodeID(1), testutil.NodeID(2), testutil.NodeID(3), testutil.NodeID(4)}
	nodes, err := client.LookupNodes(context.Background(), ids)
	if err != nil {
		t.Fatalf("LookupNodes() error = %v", err)
	}
	if len(nodes) != len(ids) {
		t.Fatalf("len(nodes) = %d, want %d", len(nodes), len(ids))
	}

	if !nodes[0].IsRepository() || nodes[0].NameWithOwner != testutil.FullName(1) {
		t.Errorf("nodes[0] = %+v, want repository %s", nodes[0], testutil.FullName(1))
	}
	if nodes[0].DatabaseID == nil || *nodes[0].DatabaseID != 1 {
		t.Errorf("nodes[0].DatabaseID = %v, want 1", nodes[0].DatabaseID)
	}
	if nodes[0].CreatedAt == nil || nodes[0].PrimaryLanguage == nil {
		t.Error("nodes[0] should carry createdAt and primaryLanguage")
	}
	if nodes[1] != nil {
		t.Errorf("nodes[1] = %+v, want nil", nodes[1])
	}
	if nodes[2] == nil || nodes[2].IsRepository() {
		t.Errorf("nodes[2] = %+v, want non-repository node", nodes[2])
	}
	if !nodes[3].IsRepository() {
		t.Errorf("nodes[3] should be a repository")
	}
}

func TestLookupNodes_Empty(t *testing.T) {
	mock := testutil.NewMockGitHub(nil)
	defer mock.Close()

	client := newTestClient(t, mock, nil)

	nodes, err := client.LookupNodes(context.Background(), nil)
	if err != nil || nodes != nil {
		t.Errorf("LookupNodes(nil) = %v, %v; want nil, nil", nodes, err)
	}
	if mock.GetRequestCount(testutil.PathGraphQL) != 0 {
		t.Error("empty lookup should not call the API")
	}
}

func TestLookupNodes_TooMany(t *testing.T) {
	mock := testutil.NewMockGitHub(nil)
	defer mock.Close()

	client := newTestClient(t, mock, nil)

	ids := make([]string, MaxNodeIDs+1)
	if _, err := client.LookupNodes(context.Background(), ids); err == nil {
		t.Error("LookupNodes() should reject more than MaxNodeIDs ids")
	}
}

func TestLookupNodes_NoData(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.DenseIDs(3))
	defer mock.Close()
	mock.Enqueue(testutil.PathGraphQL, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"errors":[{"type":"MAX_NODE_LIMIT_EXCEEDED","message":"too many"}]}`,
	})

	client := newTestClient(t, mock, nil)

	_, err := client.LookupNodes(context.Background(), []string{testutil.NodeID(1)})
	if got := ClassOf(err); got != ErrorClassDecode {
		t.Errorf("ClassOf() = %q, want %q", got, ErrorClassDecode)
	}
}

func TestSearchTotal(t *testing.T) {
	mock := testutil.NewMockGitHub(nil)
	defer mock.Close()
	mock.SetTotalCount(123_456_789)

	client := newTestClient(t, mock, nil)

	total, err := client.SearchTotal(context.Background())
	if err != nil {
		t.Fatalf("SearchTotal() error = %v", err)
	}
	if total != 123_456_789 {
		t.Errorf("SearchTotal() = %d, want 123456789", total)
	}
}

func TestSearchTotal_Failure(t *testing.T) {
	mock := testutil.NewMockGitHub(nil)
	defer mock.Close()
	mock.Enqueue(testutil.PathSearch, testutil.NewServerErrorResponse())

	client := newTestClient(t, mock, nil)

	if _, err := client.SearchTotal(context.Background()); ClassOf(err) != ErrorClassServer {
		t.Errorf("SearchTotal() error = %v, want server error", err)
	}
}
