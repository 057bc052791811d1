package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownLane = errors.New("unknown lane")

// Job is one delivery of an enqueued payload to a worker.
type Job struct {
	ID         string
	Lane       Lane
	Payload    []byte
	Attempt    int
	EnqueuedAt time.Time
}

// Decode unmarshals the payload into v. A payload that cannot be decoded
// will never succeed, so the error is permanent.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Lane, err))
	}
	return nil
}

// Handler processes one job. Returning an error schedules a retry unless
// the error is wrapped with Permanent.
type Handler func(ctx context.Context, job *Job) error

// Handle identifies an enqueued job.
type Handle struct {
	ID   string
	Lane Lane
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// DeadLetter describes a job removed from active retry.
type DeadLetter struct {
	Job       *Job
	Err       error
	Attempts  int
	Permanent bool
}

// DeadLetterSink retains dead-lettered jobs for inspection.
type DeadLetterSink interface {
	Save(ctx context.Context, dl *DeadLetter) error
}
