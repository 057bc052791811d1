package service

import (
	"context"
	"fmt"
	"time"

	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/pkg/mailer"
	"tabkeeper-be/internal/repository/unitofwork"
	"tabkeeper-be/pkg/queue"
)

// DeadLetterSink stores dead-lettered jobs and, when a mailer is set,
// notifies operators. Alert delivery never fails the save.
type DeadLetterSink struct {
	uowFactory unitofwork.RepositoryFactory
	alerts     mailer.IAlertMailer
	logger     logger.ILogger
}

func NewDeadLetterSink(uowFactory unitofwork.RepositoryFactory, alerts mailer.IAlertMailer, log logger.ILogger) *DeadLetterSink {
	return &DeadLetterSink{
		uowFactory: uowFactory,
		alerts:     alerts,
		logger:     log,
	}
}

func (s *DeadLetterSink) Save(ctx context.Context, dl *queue.DeadLetter) error {
	record := &entity.DeadLetterJob{
		JobId:     dl.Job.ID,
		Lane:      string(dl.Job.Lane),
		Payload:   dl.Job.Payload,
		Error:     dl.Err.Error(),
		Attempts:  dl.Attempts,
		Permanent: dl.Permanent,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.DeadLetterRepository().Create(ctx, record); err != nil {
		return fmt.Errorf("save dead letter %s: %w", dl.Job.ID, err)
	}

	if s.alerts != nil {
		go s.alert(record)
	}
	return nil
}

func (s *DeadLetterSink) alert(record *entity.DeadLetterJob) {
	occurredAt := record.CreatedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	err := s.alerts.SendDeadLetterAlert(mailer.DeadLetterAlert{
		JobId:      record.JobId,
		Lane:       record.Lane,
		Error:      record.Error,
		Attempts:   record.Attempts,
		Permanent:  record.Permanent,
		OccurredAt: occurredAt,
	})
	if err != nil {
		s.logger.Warn("DeadLetter", "Failed to send dead letter alert", map[string]interface{}{
			"job_id": record.JobId,
			"error":  err.Error(),
		})
	}
}
