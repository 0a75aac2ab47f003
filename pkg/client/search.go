package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// PopulationQuery is the search query whose total_count approximates the
// number of public repositories.
const PopulationQuery = "is:public"

type searchResponse struct {
	TotalCount int64 `json:"total_count"`
}

// SearchTotal returns the search API's total_count for PopulationQuery.
// The number is informational only.
func (c *Client) SearchTotal(ctx context.Context) (int64, error) {
	q := url.Values{}
	q.Set("q", PopulationQuery)
	q.Set("per_page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.RESTBaseURL+"/search/repositories?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req, APISearch)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, decodeError(APISearch, resp.StatusCode, err)
	}

	return decoded.TotalCount, nil
}
