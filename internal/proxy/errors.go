package proxy

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrStreamStalled      = errors.New("backend stopped sending data")
)

// StatusError is returned by Lines when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}
