package client

import "time"

// Stub is the lightweight listing representation of a repository.
// It is not authoritative and only lives until it is resolved or dropped.
type Stub struct {
	ID       int64  `json:"id"`
	NodeID   string `json:"node_id"`
	FullName string `json:"full_name"`
}

// RepositoryTypename is the GraphQL __typename of a repository node.
const RepositoryTypename = "Repository"

// Language is the GraphQL primaryLanguage object.
type Language struct {
	Name string `json:"name"`
}

// Node is one entry of a GraphQL nodes(ids:) response. Every field is
// optional: inaccessible repositories come back partially populated.
type Node struct {
	Typename        string     `json:"__typename"`
	ID              string     `json:"id"`
	DatabaseID      *int64     `json:"databaseId"`
	NameWithOwner   string     `json:"nameWithOwner"`
	StargazerCount  *int       `json:"stargazerCount"`
	IsFork          *bool      `json:"isFork"`
	IsArchived      *bool      `json:"isArchived"`
	IsPrivate       *bool      `json:"isPrivate"`
	CreatedAt       *time.Time `json:"createdAt"`
	PushedAt        *time.Time `json:"pushedAt"`
	PrimaryLanguage *Language  `json:"primaryLanguage"`
}

// IsRepository reports whether the node is present and a repository.
func (n *Node) IsRepository() bool {
	return n != nil && n.Typename == RepositoryTypename
}
