package mrdstorage

import (
	"github.com/cockroachdb/errors"

	"github.com/ismrmrd/mrd-storage-client-go/internal/httpx"
)

var (
	// ErrConnection indicates the storage server could not be reached, or the
	// connection was lost (including timeouts after retries are exhausted).
	ErrConnection = errors.New("mrdstorage: connection failed")
	// ErrSerialization indicates a value could not be serialized for storage,
	// or stored bytes could not be deserialized.
	ErrSerialization = errors.New("mrdstorage: serialization failed")
	// ErrHealthcheck indicates the server was reachable but reported
	// unhealthy on the health endpoint.
	ErrHealthcheck = errors.New("mrdstorage: healthcheck failed")
)

// StatusCode returns the HTTP status code carried by err, or 0 when err does
// not stem from a non-success HTTP response. Failed requests that are neither
// connection nor healthcheck failures propagate unclassified; this helper
// lets callers inspect them without a dedicated error kind.
func StatusCode(err error) int {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// translateErr marks transport-level connection failures with ErrConnection.
// All other errors, notably non-2xx responses, pass through unchanged.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var connErr *httpx.ConnectionError
	if errors.As(err, &connErr) {
		return errors.Mark(err, ErrConnection)
	}
	return err
}
