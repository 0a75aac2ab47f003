//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/repo-star-census/internal/testutil"
	"github.com/Sternrassler/repo-star-census/pkg/cache"
	"github.com/Sternrassler/repo-star-census/pkg/checkpoint"
	"github.com/Sternrassler/repo-star-census/pkg/client"
	"github.com/Sternrassler/repo-star-census/pkg/logging"
	"github.com/Sternrassler/repo-star-census/pkg/pagination"
	"github.com/Sternrassler/repo-star-census/pkg/probe"
	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/Sternrassler/repo-star-census/pkg/sampler"
	"github.com/Sternrassler/repo-star-census/pkg/sink"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newClient(t *testing.T, mock *testutil.MockGitHub) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig("integration-token")
	cfg.RESTBaseURL = mock.URL()
	cfg.GraphQLURL = mock.GraphQLURL()
	cfg.Timeout = 5 * time.Second

	gh, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { gh.Close() })
	return gh
}

// crawl probes the mock for its max id and runs one exhaustive crawl.
func crawl(t *testing.T, mock *testutil.MockGitHub, store checkpoint.Store, output string) sampler.Result {
	t.Helper()
	ctx := context.Background()
	gh := newClient(t, mock)

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	prober := probe.New(gh.Exists, probe.Config{}, logging.NewLogger("probe"))
	maxID, err := prober.FindMaxID(ctx, probe.Hint(state.LastSeenID))
	if err != nil {
		t.Fatalf("FindMaxID() error = %v", err)
	}

	out, err := sink.NewCSVSink(output)
	if err != nil {
		t.Fatalf("NewCSVSink() error = %v", err)
	}
	defer out.Close()

	cfg := sampler.DefaultConfig()
	cfg.Pagination = pagination.Config{PerPage: 40}

	resolver := resolve.New(gh, resolve.Config{BatchSize: 25})
	s, err := sampler.New(gh, resolver, store, out, cfg)
	if err != nil {
		t.Fatalf("sampler.New() error = %v", err)
	}

	result, err := s.Run(ctx, maxID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return result
}

func TestCrawl_ResumeFromRedisCheckpoint(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := checkpoint.NewRedisStore(redisClient, "star-census:it:checkpoint")
	output := filepath.Join(t.TempDir(), "repos.csv")

	// First run sees 150 repositories.
	first := testutil.NewMockGitHub(testutil.DenseIDs(150))
	result := crawl(t, first, store, output)
	first.Close()

	if result.Written != 150 {
		t.Errorf("first run wrote %d, want 150", result.Written)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.LastSeenID != 150 {
		t.Errorf("checkpoint after first run = %s, want 0,150", state)
	}

	// The id space grew; the second run continues after 150.
	second := testutil.NewMockGitHub(testutil.DenseIDs(300))
	defer second.Close()
	result = crawl(t, second, store, output)

	if result.Written != 150 {
		t.Errorf("second run wrote %d, want 150", result.Written)
	}
	if cursors := second.ListingCursors(); len(cursors) == 0 {
		t.Fatal("second run made no listing calls")
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 301 {
		t.Errorf("output has %d lines, want 301 (header + 300 rows)", len(lines))
	}

	seen := make(map[string]bool)
	for _, line := range lines[1:] {
		id := strings.SplitN(line, ",", 2)[0]
		if seen[id] {
			t.Errorf("repository %s written twice", id)
		}
		seen[id] = true
	}
}

func TestEstimateCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitHub(testutil.DenseIDs(10))
	defer mock.Close()
	mock.SetTotalCount(987654321)

	gh := newClient(t, mock)
	manager := cache.NewManager(redisClient)
	key := cache.EstimateKey(client.PopulationQuery)
	ctx := context.Background()

	for i, wantHit := range []bool{false, true, true} {
		total, hit, err := manager.Estimate(ctx, key, time.Minute, gh.SearchTotal)
		if err != nil {
			t.Fatalf("call %d: Estimate() error = %v", i, err)
		}
		if total != 987654321 {
			t.Errorf("call %d: total = %d, want 987654321", i, total)
		}
		if hit != wantHit {
			t.Errorf("call %d: hit = %v, want %v", i, hit, wantHit)
		}
	}

	if got := mock.GetRequestCount(testutil.PathSearch); got != 1 {
		t.Errorf("search requests = %d, want 1", got)
	}
}

func TestCrawl_StratifiedRedisCheckpoint(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitHub(testutil.DenseIDs(1000))
	defer mock.Close()
	gh := newClient(t, mock)

	store := checkpoint.NewRedisStore(redisClient, checkpoint.DefaultRedisKey)
	out, err := sink.NewCSVSink(filepath.Join(t.TempDir(), "sample.csv"))
	if err != nil {
		t.Fatalf("NewCSVSink() error = %v", err)
	}
	defer out.Close()

	cfg := sampler.DefaultConfig()
	cfg.SampleSize = 100
	cfg.NumBuckets = 10
	cfg.Pagination = pagination.Config{PerPage: 5}

	s, err := sampler.New(gh, resolve.New(gh, resolve.Config{BatchSize: 5}), store, out, cfg)
	if err != nil {
		t.Fatalf("sampler.New() error = %v", err)
	}

	result, err := s.Run(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Written != 100 || !result.TargetReached {
		t.Errorf("Run() wrote %d (target reached %v), want 100 and true", result.Written, result.TargetReached)
	}
	if len(result.BucketWritten) < 10 {
		t.Errorf("records came from %d buckets, want all 10", len(result.BucketWritten))
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state != result.Final {
		t.Errorf("stored checkpoint %+v, want %+v", state, result.Final)
	}
}
