package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/Sternrassler/repo-star-census/internal/testutil"
	"github.com/Sternrassler/repo-star-census/pkg/client"
)

// fakeLookup returns canned responses in order, then repository nodes.
type fakeLookup struct {
	responses [][]*client.Node
	errs      []error
	calls     [][]string
}

func (f *fakeLookup) LookupNodes(_ context.Context, ids []string) ([]*client.Node, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.responses) > 0 {
		resp := f.responses[0]
		f.responses = f.responses[1:]
		return resp, nil
	}

	nodes := make([]*client.Node, len(ids))
	for i, id := range ids {
		nodes[i] = repoNode(id)
	}
	return nodes, nil
}

func repoNode(nodeID string) *client.Node {
	return &client.Node{Typename: client.RepositoryTypename, ID: nodeID, NameWithOwner: "name/" + nodeID}
}

func stubRange(from, to int64) []client.Stub {
	var out []client.Stub
	for id := from; id <= to; id++ {
		out = append(out, client.Stub{ID: id, NodeID: testutil.NodeID(id), FullName: testutil.FullName(id)})
	}
	return out
}

func TestResolve_Pairing(t *testing.T) {
	batch := stubRange(1, 3)
	lookup := &fakeLookup{responses: [][]*client.Node{{
		repoNode(batch[0].NodeID),
		nil,
		repoNode(batch[2].NodeID),
	}}}
	r := New(lookup, DefaultConfig())

	records := r.Resolve(context.Background(), batch)

	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].NodeID != batch[0].NodeID || records[0].ID != 1 {
		t.Errorf("records[0] = %+v, want stub 1", records[0])
	}
	if records[1].NodeID != batch[2].NodeID || records[1].ID != 3 {
		t.Errorf("records[1] = %+v, want stub 3", records[1])
	}

	stats := r.Stats()
	if stats.Dropped[DropNull] != 1 {
		t.Errorf("Dropped[null] = %d, want 1", stats.Dropped[DropNull])
	}
	if stats.Resolved != 2 {
		t.Errorf("Resolved = %d, want 2", stats.Resolved)
	}
}

func TestResolve_DropReasons(t *testing.T) {
	batch := stubRange(1, 4)
	lookup := &fakeLookup{responses: [][]*client.Node{{
		{Typename: "Organization"},
		repoNode(batch[1].NodeID),
		// response is one entry short
	}}}
	r := New(lookup, DefaultConfig())

	records := r.Resolve(context.Background(), batch)

	if len(records) != 1 || records[0].ID != 2 {
		t.Fatalf("records = %+v, want only stub 2", records)
	}

	stats := r.Stats()
	if stats.Dropped[DropWrongType] != 1 {
		t.Errorf("Dropped[wrong_type] = %d, want 1", stats.Dropped[DropWrongType])
	}
	if stats.Dropped[DropMissing] != 2 {
		t.Errorf("Dropped[missing] = %d, want 2", stats.Dropped[DropMissing])
	}
	if stats.TotalDropped() != 3 {
		t.Errorf("TotalDropped() = %d, want 3", stats.TotalDropped())
	}
}

func TestResolve_FailureDiscardsBatch(t *testing.T) {
	lookup := &fakeLookup{errs: []error{&client.APIError{ErrorClass: client.ErrorClassServer, StatusCode: 502}}}
	r := New(lookup, DefaultConfig())

	records := r.Resolve(context.Background(), stubRange(1, 5))

	if records != nil {
		t.Errorf("records = %+v, want nil", records)
	}
	stats := r.Stats()
	if stats.FailedBatches != 1 {
		t.Errorf("FailedBatches = %d, want 1", stats.FailedBatches)
	}
	if stats.Dropped[DropBatchFailed] != 5 {
		t.Errorf("Dropped[batch_failed] = %d, want 5", stats.Dropped[DropBatchFailed])
	}
	if len(lookup.calls) != 1 {
		t.Errorf("lookup calls = %d, want 1 (no retry)", len(lookup.calls))
	}
}

func TestResolve_ThrottledIsRetried(t *testing.T) {
	throttled := &client.APIError{ErrorClass: client.ErrorClassRateLimit, StatusCode: 403}

	tests := []struct {
		name        string
		errs        []error
		maxRetries  int
		wantRecords int
		wantCalls   int
	}{
		{name: "succeeds after retry", errs: []error{throttled}, maxRetries: 3, wantRecords: 2, wantCalls: 2},
		{name: "gives up after retries", errs: []error{throttled, throttled, throttled}, maxRetries: 2, wantRecords: 0, wantCalls: 3},
		{name: "no retries configured", errs: []error{throttled}, maxRetries: 0, wantRecords: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &fakeLookup{errs: tt.errs}
			r := New(lookup, Config{BatchSize: 10, MaxRateLimitRetries: tt.maxRetries})

			records := r.Resolve(context.Background(), stubRange(1, 2))

			if len(records) != tt.wantRecords {
				t.Errorf("len(records) = %d, want %d", len(records), tt.wantRecords)
			}
			if len(lookup.calls) != tt.wantCalls {
				t.Errorf("lookup calls = %d, want %d", len(lookup.calls), tt.wantCalls)
			}
		})
	}
}

func TestFlush_Batches(t *testing.T) {
	lookup := &fakeLookup{}
	r := New(lookup, Config{BatchSize: 4})

	r.Add(stubRange(1, 3)...)
	if r.Ready() {
		t.Error("Ready() = true with 3 of 4 buffered")
	}

	r.Add(stubRange(4, 10)...)
	if !r.Ready() {
		t.Error("Ready() = false with 10 buffered")
	}
	if first, ok := r.FirstPending(); !ok || first != 1 {
		t.Errorf("FirstPending() = %d, %v; want 1, true", first, ok)
	}
	if next := r.NextBatch(); len(next) != 4 || next[0].ID != 1 || next[3].ID != 4 || r.Pending() != 10 {
		t.Errorf("NextBatch() = %d stubs from %v, Pending() = %d; want ids 1..4 and 10 pending", len(next), next, r.Pending())
	}

	var ids []int64
	for r.Pending() > 0 {
		for _, rec := range r.Flush(context.Background()) {
			ids = append(ids, rec.ID)
		}
	}

	if len(ids) != 10 {
		t.Fatalf("resolved %d records, want 10", len(ids))
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Errorf("ids[%d] = %d, want %d", i, id, i+1)
		}
	}

	sizes := []int{len(lookup.calls[0]), len(lookup.calls[1]), len(lookup.calls[2])}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("batch sizes = %v, want [4 4 2]", sizes)
	}
	if _, ok := r.FirstPending(); ok {
		t.Error("FirstPending() ok = true on empty buffer")
	}
	if r.Flush(context.Background()) != nil {
		t.Error("Flush() on empty buffer should return nil")
	}
}

func TestFlush_FailedBatchLeavesBuffer(t *testing.T) {
	lookup := &fakeLookup{errs: []error{errors.New("connection reset")}}
	r := New(lookup, Config{BatchSize: 2})
	r.Add(stubRange(1, 3)...)

	if got := r.Flush(context.Background()); got != nil {
		t.Errorf("Flush() = %+v, want nil", got)
	}
	if r.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", r.Pending())
	}
	if first, _ := r.FirstPending(); first != 3 {
		t.Errorf("FirstPending() = %d, want 3", first)
	}
}

func TestResolver_AgainstMockGitHub(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.DenseIDs(6))
	defer mock.Close()
	mock.SetMissing(2)
	mock.SetForeign(5)

	cfg := client.DefaultConfig("test-token")
	cfg.RESTBaseURL = mock.URL()
	cfg.GraphQLURL = mock.GraphQLURL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	r := New(c, Config{BatchSize: 3})
	r.Add(stubRange(1, 6)...)

	var records []Record
	for r.Pending() > 0 {
		records = append(records, r.Flush(context.Background())...)
	}

	want := []int64{1, 3, 4, 6}
	if len(records) != len(want) {
		t.Fatalf("len(records) = %d, want %d", len(records), len(want))
	}
	for i, id := range want {
		if records[i].ID != id {
			t.Errorf("records[%d].ID = %d, want %d", i, records[i].ID, id)
		}
		if records[i].StargazerCount == nil || *records[i].StargazerCount != testutil.Stars(id) {
			t.Errorf("records[%d].StargazerCount = %v, want %d", i, records[i].StargazerCount, testutil.Stars(id))
		}
	}

	sizes := mock.LookupSizes()
	if len(sizes) != 2 || sizes[0] != 3 || sizes[1] != 3 {
		t.Errorf("lookup sizes = %v, want [3 3]", sizes)
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(&fakeLookup{}, Config{BatchSize: 0, MaxRateLimitRetries: -1})

	if r.BatchSize() != client.MaxNodeIDs {
		t.Errorf("BatchSize() = %d, want %d", r.BatchSize(), client.MaxNodeIDs)
	}
	if r.config.MaxRateLimitRetries != 0 {
		t.Errorf("MaxRateLimitRetries = %d, want 0", r.config.MaxRateLimitRetries)
	}
}
