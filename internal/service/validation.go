package service

import (
	"fmt"

	"tabkeeper-be/pkg/queue"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJob unmarshals and validates a job payload. Both failures are
// permanent since redelivering the same bytes cannot fix them.
func decodeJob(job *queue.Job, v interface{}) error {
	if err := job.Decode(v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return queue.Permanent(fmt.Errorf("invalid %s payload: %w", job.Lane, err))
	}
	return nil
}
