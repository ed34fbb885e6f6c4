package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alumni-connect/backend/internal/mailer"
	"github.com/alumni-connect/backend/pkg/queue"
)

// JobQueue is the queue surface the worker consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// LogStore updates email delivery status.
type LogStore interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
}

// EmailProcessor sends queued emails and records the outcome in email_logs.
type EmailProcessor struct {
	sender  mailer.Sender
	logs    LogStore
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(sender mailer.Sender, logs LogStore, q JobQueue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{sender: sender, logs: logs, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.RecipientEmail == "" {
		return fmt.Errorf("email job %s has no recipient", job.ID)
	}

	if err := p.sender.Send(ctx, mailer.Message{
		To:       payload.RecipientEmail,
		Subject:  payload.Subject,
		BodyHTML: payload.BodyHTML,
	}); err != nil {
		return err
	}

	if payload.EmailLogID != uuid.Nil {
		if err := p.logs.MarkSent(ctx, payload.EmailLogID, time.Now().UTC()); err != nil {
			p.logger.Warn("mark email sent failed", zap.Error(err), zap.String("email_log_id", payload.EmailLogID.String()))
		}
	}
	p.logger.Info("email sent", zap.String("email_type", payload.EmailType), zap.String("email_log_id", payload.EmailLogID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Jobs that exhaust their retries
// are dead-lettered and their log row is marked failed.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			dead, reErr := p.queue.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if dead {
				p.markFailed(ctx, job, err)
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) markFailed(ctx context.Context, job *queue.Job, cause error) {
	var payload queue.EmailPayload
	if json.Unmarshal(job.Payload, &payload) != nil || payload.EmailLogID == uuid.Nil {
		return
	}
	if err := p.logs.MarkFailed(ctx, payload.EmailLogID, cause.Error()); err != nil {
		p.logger.Warn("mark email failed failed", zap.Error(err), zap.String("email_log_id", payload.EmailLogID.String()))
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
