package httpx

import (
	"net/http"
	"time"
)

// exponentialBackoff returns 0 before the first retry, then base*2^attempt
// capped at max: 0, 2s, 4s, ... with the default 1s base.
func exponentialBackoff(base, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	if attemptNum <= 0 {
		return 0
	}
	delay := base << uint(attemptNum)
	if delay <= 0 || delay > max {
		delay = max
	}
	return delay
}
