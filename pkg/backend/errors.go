package backend

import (
	"errors"
	"fmt"
)

// SubmissionError wraps a failed submit. Submission failures are fatal
// for the attempt: the caller drops the job and the next schedule tick
// starts a fresh one.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("job submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// QueryError wraps a failed queue or history lookup. Query failures are
// transient: callers assume the job is still active rather than losing
// track of it.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("schedd %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsSubmissionError reports whether err is a submission failure.
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// IsQueryError reports whether err is a transient lookup failure.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
