package rollout

import "fmt"

// InvariantError reports a live object that is missing a field this engine
// assumes the platform always populates (status blocks, selectors,
// pod-template-hash labels). It is unrecoverable for the current session.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "kube invariant violated: " + e.Reason
}

func invariantErr(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// MalformedInputError reports a selector or numeric field that failed to
// parse into the shape this engine supports.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input: %s: %v", e.Reason, e.Err)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}
