package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRobotsDisallowed = errors.New("blocked by robots.txt")
	ErrDecode           = errors.New("decode failed")
)

// FetchError is returned by every transport in this package. Status is zero
// when no response was received.
type FetchError struct {
	URL    string
	Status int
	Header http.Header
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	if e.Status == 0 {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
