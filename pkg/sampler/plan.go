// Package sampler drives the crawl: it pages through the id space with the
// enumerator, resolves stubs in batches, writes records and checkpoints
// after every page. It runs exhaustively over [0, max id] or stratified
// over equal-width buckets with per-bucket quotas.
package sampler

import "fmt"

// Bucket is one stratum of the id space: ids in [Start, End).
type Bucket struct {
	Index int
	Start int64
	End   int64
	// Quota is the number of discovered stubs after which the bucket is
	// done. Zero means no quota.
	Quota int
}

// Empty reports whether the bucket holds no ids.
func (b Bucket) Empty() bool {
	return b.End <= b.Start
}

// String returns a short description for logs.
func (b Bucket) String() string {
	return fmt.Sprintf("bucket %d [%d, %d)", b.Index, b.Start, b.End)
}

// Plan splits [0, maxID] into numBuckets equal-width buckets. The last
// bucket ends at maxID+1 so maxID itself is covered; with more buckets
// than ids the trailing buckets are empty. Each bucket's quota is
// target/numBuckets, at least 1.
func Plan(maxID int64, numBuckets, target int) []Bucket {
	if numBuckets < 1 {
		numBuckets = 1
	}
	if maxID < 0 {
		maxID = 0
	}

	width := maxID / int64(numBuckets)
	if width < 1 {
		width = 1
	}

	quota := target / numBuckets
	if quota < 1 {
		quota = 1
	}

	buckets := make([]Bucket, numBuckets)
	for i := range buckets {
		start := int64(i) * width
		end := start + width
		if i == numBuckets-1 || end > maxID+1 {
			end = maxID + 1
		}
		if end < start {
			end = start
		}
		buckets[i] = Bucket{Index: i, Start: start, End: end, Quota: quota}
	}

	return buckets
}

// Whole returns the single bucket used in exhaustive mode.
func Whole(maxID int64) Bucket {
	if maxID < 0 {
		maxID = 0
	}
	return Bucket{Index: 0, Start: 0, End: maxID + 1}
}

// startCursor is the listing cursor that begins at b.Start.
func (b Bucket) startCursor() int64 {
	if b.Start <= 0 {
		return 0
	}
	return b.Start - 1
}

// lastID is the largest id in the bucket.
func (b Bucket) lastID() int64 {
	return b.End - 1
}
