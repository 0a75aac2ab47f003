// Package resolve turns listing stubs into authoritative repository records
// using batched GraphQL node lookups.
package resolve

import (
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/client"
)

// Record is the authoritative metadata of one repository. Optional fields
// are nil when the upstream node did not carry them.
type Record struct {
	ID             int64
	NodeID         string
	FullName       string
	StargazerCount *int
	IsFork         *bool
	IsArchived     *bool
	IsPrivate      *bool
	CreatedAt      *time.Time
	PushedAt       *time.Time
	Language       string
}

// DropReason tells why a stub produced no record.
type DropReason string

const (
	// DropNull means the lookup returned null for the node.
	DropNull DropReason = "null"
	// DropWrongType means the node is not a repository.
	DropWrongType DropReason = "wrong_type"
	// DropMissing means the response had no entry at the stub's position.
	DropMissing DropReason = "missing"
	// DropBatchFailed means the whole lookup call failed.
	DropBatchFailed DropReason = "batch_failed"
)

// Merge builds a record from a node, falling back to the stub for the
// numeric id and name when the node lacks them. The node id is the node's
// own. It reports false
// when the node is nil or not a repository.
func Merge(stub client.Stub, node *client.Node) (Record, bool) {
	if node == nil || !node.IsRepository() {
		return Record{}, false
	}

	rec := Record{
		ID:             stub.ID,
		NodeID:         node.ID,
		FullName:       stub.FullName,
		StargazerCount: node.StargazerCount,
		IsFork:         node.IsFork,
		IsArchived:     node.IsArchived,
		IsPrivate:      node.IsPrivate,
		CreatedAt:      node.CreatedAt,
		PushedAt:       node.PushedAt,
	}

	if node.DatabaseID != nil {
		rec.ID = *node.DatabaseID
	}
	if node.NameWithOwner != "" {
		rec.FullName = node.NameWithOwner
	}
	if node.PrimaryLanguage != nil {
		rec.Language = node.PrimaryLanguage.Name
	}

	return rec, true
}

// dropReason classifies a node Merge rejected.
func dropReason(node *client.Node) DropReason {
	if node == nil {
		return DropNull
	}
	return DropWrongType
}
