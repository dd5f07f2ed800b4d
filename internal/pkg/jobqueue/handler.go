package jobqueue

import (
	"context"
	"errors"
	"fmt"
)

// Handler runs the jobs of one type
type Handler interface {
	// Handle runs one attempt. The context carries the per-attempt timeout.
	Handle(ctx context.Context, job *Job) error
	// OnFailure is called once when the job will not be attempted again.
	OnFailure(ctx context.Context, job *Job, err error)
}

// permanentError marks a failure that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue fails the job without further attempts
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// PanicError is returned for a job whose handler panicked
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job handler panicked: %v", e.Value)
}
