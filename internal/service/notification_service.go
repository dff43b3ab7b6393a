package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/jobs"
	"github.com/noah-isme/vzs-club-api/pkg/mailer"
)

// JobTypeEmail is the queue job type of outgoing email.
const JobTypeEmail = "email"

type messageQueue interface {
	Enqueue(jobType string, payload mailer.Message) error
}

type permissionHolderRepository interface {
	ListPersonsWithPermission(ctx context.Context, codename string) ([]models.Person, error)
}

// Notifier hands messages over for delivery after the triggering mutation
// has committed.
type Notifier interface {
	Notify(ctx context.Context, messages ...mailer.Message)
}

// NotificationService resolves recipients and queues email. Delivery is
// best effort: a failure is logged and counted, never returned.
type NotificationService struct {
	queue      messageQueue
	holders    permissionHolderRepository
	adminEmail string
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(queue messageQueue, holders permissionHolderRepository, adminEmail string, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, holders: holders, adminEmail: adminEmail, metrics: metrics, logger: logger}
}

// Notify queues every message that has at least one recipient.
func (s *NotificationService) Notify(ctx context.Context, messages ...mailer.Message) {
	for _, msg := range messages {
		msg.To = uniqueEmails(msg.To)
		if len(msg.To) == 0 {
			s.logger.Debug("notification without recipients dropped", zap.String("subject", msg.Subject))
			continue
		}
		if err := s.queue.Enqueue(JobTypeEmail, msg); err != nil {
			s.metrics.RecordNotification("failed")
			s.logger.Warn("failed to queue notification", zap.String("subject", msg.Subject), zap.Error(err))
			continue
		}
		s.metrics.RecordNotification("queued")
	}
}

// HolderEmails returns the addresses of persons holding codename, falling
// back to the configured admin address when nobody does.
func (s *NotificationService) HolderEmails(ctx context.Context, codename string) ([]string, error) {
	persons, err := s.holders.ListPersonsWithPermission(ctx, codename)
	if err != nil {
		return nil, err
	}
	emails := emailsOf(persons...)
	if len(emails) == 0 && s.adminEmail != "" {
		emails = []string{s.adminEmail}
	}
	return emails, nil
}

// NewMailHandler adapts a mailer to the job queue.
func NewMailHandler(sender mailer.Sender, metrics *MetricsService, logger *zap.Logger) jobs.Handler[mailer.Message] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job[mailer.Message]) error {
		if err := sender.Send(ctx, job.Payload); err != nil {
			metrics.RecordNotification("failed")
			logger.Warn("email delivery failed",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempt),
				zap.String("subject", job.Payload.Subject),
				zap.Error(err))
			return err
		}
		metrics.RecordNotification("sent")
		return nil
	}
}

func emailsOf(persons ...models.Person) []string {
	out := make([]string, 0, len(persons))
	for _, p := range persons {
		if email := p.EmailAddress(); email != "" {
			out = append(out, email)
		}
	}
	return out
}

func uniqueEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		key := strings.ToLower(strings.TrimSpace(e))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(e))
	}
	sort.Strings(out)
	return out
}

// outbox collects messages during a transaction.
type outbox struct {
	messages []mailer.Message
}

func (o *outbox) add(msg mailer.Message) {
	if o == nil {
		return
	}
	o.messages = append(o.messages, msg)
}

func (o *outbox) flush(ctx context.Context, n Notifier) {
	if o == nil || n == nil || len(o.messages) == 0 {
		return
	}
	n.Notify(ctx, o.messages...)
	o.messages = nil
}
