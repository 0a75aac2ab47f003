package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MaxPerPage is the largest page size the listing API accepts.
const MaxPerPage = 100

// ListRepositories returns up to perPage stubs with id > since, ordered by
// increasing id. An empty slice with a nil error means the cursor reached
// the end of the currently visible repositories. Failures are returned as
// *APIError so callers can tell them apart from the end of data.
func (c *Client) ListRepositories(ctx context.Context, since int64, perPage int) ([]Stub, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		return nil, fmt.Errorf("per_page must be between 1 and %d (got %d)", MaxPerPage, perPage)
	}

	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.RESTBaseURL+"/repositories?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req, APIListing)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stubs []Stub
	if err := json.NewDecoder(resp.Body).Decode(&stubs); err != nil {
		return nil, decodeError(APIListing, resp.StatusCode, err)
	}

	return stubs, nil
}

// Exists reports whether at least one repository with id >= id exists, by
// listing a single entry after id-1. Any failure counts as "no": the
// boundary search then moves down, which errs on the conservative side.
func (c *Client) Exists(ctx context.Context, id int64) bool {
	since := id - 1
	if since < 0 {
		since = 0
	}

	stubs, err := c.ListRepositories(ctx, since, 1)
	if err != nil {
		c.logger.Debug().Err(err).Int64("id", id).Msg("Existence probe failed")
		return false
	}

	return len(stubs) > 0
}
