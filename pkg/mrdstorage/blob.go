package mrdstorage

import (
	"context"
	"net/http"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/ismrmrd/mrd-storage-client-go/internal/httpx"
)

// Blob is one search-result record: the metadata fields the server returned
// for a stored item, plus on-demand access to its payload. The server is free
// to add fields, so Blob carries an open key/value record rather than a fixed
// schema. Immutable after construction.
type Blob struct {
	fields map[string]any
	fetch  *http.Client
}

func newBlob(fields map[string]any, fetch *http.Client) *Blob {
	return &Blob{fields: fields, fetch: fetch}
}

// Get returns the field stored under key, or def when the field is absent.
func (b *Blob) Get(key string, def any) any {
	if v, ok := b.fields[key]; ok {
		return v
	}
	return def
}

// Keys returns the record's field names in sorted order.
func (b *Blob) Keys() []string {
	keys := make([]string, 0, len(b.fields))
	for k := range b.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subject returns the subject tag, or "" when absent.
func (b *Blob) Subject() string { return b.stringField("subject") }

// Name returns the name tag, or "" when absent.
func (b *Blob) Name() string { return b.stringField("name") }

// ContentType returns the stored payload's content type, or "" when absent.
func (b *Blob) ContentType() string { return b.stringField("contentType") }

// DataURL returns the server-provided location of the raw payload.
func (b *Blob) DataURL() string { return b.stringField("data") }

func (b *Blob) stringField(key string) string {
	if s, ok := b.fields[key].(string); ok {
		return s
	}
	return ""
}

// Data fetches the raw payload from the blob's data reference. The reference
// may point at a different host than the storage server (e.g. a blob storage
// redirect), so the fetch is a plain GET without the retry policy. Each call
// fetches anew; nothing is cached.
func (b *Blob) Data(ctx context.Context) ([]byte, error) {
	ref := b.DataURL()
	if ref == "" {
		return nil, errors.New("mrdstorage: blob has no data reference")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, errors.Wrap(err, "mrdstorage: build payload request")
	}
	resp, err := b.fetch.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "mrdstorage: fetch blob payload"), ErrConnection)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.WithStack(httpx.ErrorFromResponse(resp))
	}
	return httpx.ReadAllAndClose(resp.Body)
}
