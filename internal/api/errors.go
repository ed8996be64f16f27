package api

import "fmt"

// StatusError is returned when a remote endpoint answers outside 2xx.
// The worker loops use StatusCode to tell permanent 4xx failures apart
// from transient 5xx ones.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: response had non OK status code %d: %s",
		e.Method, e.URL, e.StatusCode, e.Body)
}

// Permanent reports whether the status indicates a client error that
// retrying will not fix.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
