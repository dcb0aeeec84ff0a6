package mls

import "fmt"

// AuthError means a usable credential could not be obtained. It is fatal
// to the current run but never to the process; the next scheduled run
// retries authentication from scratch.
type AuthError struct {
	Status int
	Msg    string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mls auth failed (status %d): %s", e.Status, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("mls auth failed: %v", e.Err)
	}
	return fmt.Sprintf("mls auth failed: %s", e.Msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError means a feed fetch failed non-recoverably. A page failure
// aborts the whole fetch; no partial page set is ever returned.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mls %s failed (status %d): %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("mls %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
