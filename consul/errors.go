package consul

import "fmt"

// Error reports a failed interaction with the coordination service: a
// transport failure, a non-success status, or a response body that does not
// match the wire contract. Expected outcomes such as a false acquire result
// are not errors.
type Error struct {
	// Op names the operation that failed, e.g. "create session" or "read key".
	Op string
	// Status is the HTTP status code, or 0 when the request never completed.
	Status int
	// Detail describes what was wrong with the response, if the request itself
	// succeeded.
	Detail string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("consul: %s: %v", e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("consul: %s: %s", e.Op, e.Detail)
	default:
		return fmt.Sprintf("consul: %s: unexpected status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
