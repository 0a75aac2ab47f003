package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// MaxNodeIDs is the largest number of ids the nodes query accepts.
const MaxNodeIDs = 100

// nodesQuery fetches the authoritative repository fields for a batch of node ids.
const nodesQuery = `query($ids:[ID!]!){
  nodes(ids:$ids){
    __typename
    ... on Repository{
      id
      databaseId
      nameWithOwner
      stargazerCount
      isFork
      isArchived
      isPrivate
      createdAt
      pushedAt
      primaryLanguage{ name }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type nodesResponse struct {
	Data *struct {
		Nodes []*Node `json:"nodes"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// LookupNodes resolves node ids in one call. The result is parallel to ids:
// entries are nil where GitHub returned null (deleted or inaccessible).
// Partial GraphQL errors alongside data are logged, not returned.
func (c *Client) LookupNodes(ctx context.Context, ids []string) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxNodeIDs {
		return nil, fmt.Errorf("at most %d node ids per lookup (got %d)", MaxNodeIDs, len(ids))
	}

	body, err := json.Marshal(graphqlRequest{
		Query:     nodesQuery,
		Variables: map[string]any{"ids": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req, APILookup)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded nodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, decodeError(APILookup, resp.StatusCode, err)
	}

	if decoded.Data == nil {
		msg := "response has no data"
		if len(decoded.Errors) > 0 {
			msg = decoded.Errors[0].Message
		}
		return nil, decodeError(APILookup, resp.StatusCode, errors.New(msg))
	}

	if len(decoded.Errors) > 0 {
		c.logger.Debug().
			Int("errors", len(decoded.Errors)).
			Str("first_type", decoded.Errors[0].Type).
			Msg("GraphQL lookup returned partial errors")
	}

	return decoded.Data.Nodes, nil
}
