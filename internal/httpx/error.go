package httpx

import (
	"fmt"
	"io"
	"net/http"
)

// HTTPError represents a non-2xx HTTP response returned by the remote service.
type HTTPError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("http error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// ErrorFromResponse builds an HTTPError from resp, consuming and closing its
// body.
func ErrorFromResponse(resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		body = nil
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header.Clone(),
	}
}

// ConnectionError indicates the connection to the remote service could not be
// established or maintained, including timeouts after retries are exhausted.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
