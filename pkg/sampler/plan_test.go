package sampler

import "testing"

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		maxID      int64
		numBuckets int
		target     int
		wantWidth  int64
		wantQuota  int
		wantLast   Bucket
	}{
		{
			name:       "even split",
			maxID:      1000,
			numBuckets: 10,
			target:     100,
			wantWidth:  100,
			wantQuota:  10,
			wantLast:   Bucket{Index: 9, Start: 900, End: 1001, Quota: 10},
		},
		{
			name:       "remainder goes to last bucket",
			maxID:      1009,
			numBuckets: 10,
			target:     5,
			wantWidth:  100,
			wantQuota:  1,
			wantLast:   Bucket{Index: 9, Start: 900, End: 1010, Quota: 1},
		},
		{
			name:       "single bucket",
			maxID:      50,
			numBuckets: 1,
			target:     20,
			wantWidth:  50,
			wantQuota:  20,
			wantLast:   Bucket{Index: 0, Start: 0, End: 51, Quota: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buckets := Plan(tt.maxID, tt.numBuckets, tt.target)

			if len(buckets) != tt.numBuckets {
				t.Fatalf("len(buckets) = %d, want %d", len(buckets), tt.numBuckets)
			}
			for i, b := range buckets[:len(buckets)-1] {
				if b.Index != i || b.Start != int64(i)*tt.wantWidth || b.End != int64(i+1)*tt.wantWidth {
					t.Errorf("buckets[%d] = %+v", i, b)
				}
				if b.Quota != tt.wantQuota {
					t.Errorf("buckets[%d].Quota = %d, want %d", i, b.Quota, tt.wantQuota)
				}
				if b.End != buckets[i+1].Start {
					t.Errorf("gap between bucket %d and %d", i, i+1)
				}
			}
			if last := buckets[len(buckets)-1]; last != tt.wantLast {
				t.Errorf("last bucket = %+v, want %+v", last, tt.wantLast)
			}
		})
	}
}

func TestPlan_MoreBucketsThanIDs(t *testing.T) {
	buckets := Plan(5, 10, 10)

	covered := make(map[int64]int)
	for _, b := range buckets {
		if b.End < b.Start {
			t.Errorf("%s has End < Start", b)
		}
		for id := b.Start; id < b.End; id++ {
			covered[id]++
		}
	}

	for id := int64(0); id <= 5; id++ {
		if covered[id] != 1 {
			t.Errorf("id %d covered %d times, want 1", id, covered[id])
		}
	}
	if !buckets[9].Empty() {
		t.Errorf("buckets[9] = %+v, want empty", buckets[9])
	}
}

func TestPlan_Degenerate(t *testing.T) {
	buckets := Plan(0, 0, 0)
	if len(buckets) != 1 {
		t.Fatalf("len(buckets) = %d, want 1", len(buckets))
	}
	if buckets[0] != (Bucket{Index: 0, Start: 0, End: 1, Quota: 1}) {
		t.Errorf("buckets[0] = %+v", buckets[0])
	}
}

func TestWhole(t *testing.T) {
	b := Whole(1234)
	if b.Start != 0 || b.End != 1235 || b.Quota != 0 {
		t.Errorf("Whole(1234) = %+v", b)
	}
	if b.lastID() != 1234 {
		t.Errorf("lastID() = %d, want 1234", b.lastID())
	}
}

func TestBucket_StartCursor(t *testing.T) {
	if got := (Bucket{Start: 0, End: 10}).startCursor(); got != 0 {
		t.Errorf("startCursor() = %d, want 0", got)
	}
	if got := (Bucket{Start: 300, End: 400}).startCursor(); got != 299 {
		t.Errorf("startCursor() = %d, want 299", got)
	}
}
