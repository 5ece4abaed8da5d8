package providers

import (
	"errors"
	"strconv"
)

// errorsAs is a generic re-export of errors.As so each vendor file can
// call errorsAs(err, &apiErr) without repeating the errors import.
func errorsAs[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// parseRetryAfter parses a Retry-After header value expressed in
// seconds (the vendors used here never send the HTTP-date form for
// rate-limit responses).
func parseRetryAfter(v string) (int, bool) {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}
