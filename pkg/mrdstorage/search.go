package mrdstorage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/ismrmrd/mrd-storage-client-go/internal/httpx"
)

// searchPage is one page of search results as returned by the server.
type searchPage struct {
	Items    []map[string]any `json:"items"`
	NextLink string           `json:"nextLink"`
}

// Cursor iterates over the blobs matching a search query, one logical
// sequence spanning however many pages the server splits the result into.
// Pages are fetched lazily: abandoning the cursor never fetches beyond what
// was consumed. Usage follows the sql.Rows pattern:
//
//	cur := client.FetchBlobs(nil)
//	for cur.Next(ctx) {
//		data, err := cur.Blob().Data(ctx)
//		...
//	}
//	if err := cur.Err(); err != nil {
//		...
//	}
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	client *Client
	path   string
	query  url.Values

	loaded bool
	items  []*Blob
	idx    int
	next   string
	cur    *Blob
	err    error
}

func newCursor(c *Client, path string, query url.Values) *Cursor {
	return &Cursor{client: c, path: path, query: query}
}

// Next advances to the following blob, fetching the next page when the
// current one is exhausted. It returns false at the end of the sequence or on
// error; check Err to tell the two apart. Blobs already yielded remain valid
// after a failure.
func (cur *Cursor) Next(ctx context.Context) bool {
	if cur.err != nil {
		return false
	}
	for cur.idx >= len(cur.items) {
		if cur.loaded && cur.next == "" {
			return false
		}
		if err := cur.loadPage(ctx); err != nil {
			cur.err = err
			return false
		}
	}
	cur.cur = cur.items[cur.idx]
	cur.idx++
	return true
}

// Blob returns the blob the cursor advanced to on the last Next call.
func (cur *Cursor) Blob() *Blob {
	return cur.cur
}

// Err returns the error that terminated iteration, if any.
func (cur *Cursor) Err() error {
	return cur.err
}

// loadPage fetches the initial query page, or follows the pending
// continuation link verbatim (the server fully qualifies it, parameters
// included).
func (cur *Cursor) loadPage(ctx context.Context) error {
	req := &httpx.Request{Method: http.MethodGet}
	if !cur.loaded {
		req.Path = cur.path
		req.Query = cur.query
	} else {
		req.Path = cur.next
	}

	resp, err := cur.client.http.Do(ctx, req)
	if err != nil {
		return translateErr(err)
	}
	body, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return errors.Wrap(err, "mrdstorage: read search response")
	}

	var page searchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return errors.Wrap(err, "mrdstorage: decode search response")
	}

	blobs := make([]*Blob, 0, len(page.Items))
	for _, item := range page.Items {
		blobs = append(blobs, newBlob(item, cur.client.http.HTTPClient()))
	}
	cur.loaded = true
	cur.items = blobs
	cur.idx = 0
	cur.next = page.NextLink
	return nil
}
