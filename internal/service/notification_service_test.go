package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/jobs"
	"github.com/noah-isme/vzs-club-api/pkg/mailer"
)

type queueStub struct {
	queued []mailer.Message
	err    error
}

func (q *queueStub) Enqueue(jobType string, payload mailer.Message) error {
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, payload)
	return nil
}

type holderStub []models.Person

func (h holderStub) ListPersonsWithPermission(ctx context.Context, codename string) ([]models.Person, error) {
	return h, nil
}

type senderStub struct {
	err  error
	sent []mailer.Message
}

func (s *senderStub) Send(ctx context.Context, msg mailer.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestNotificationServiceNotifyDeduplicates(t *testing.T) {
	queue := &queueStub{}
	svc := NewNotificationService(queue, holderStub{}, "", nil, nil)

	svc.Notify(context.Background(),
		mailer.Message{To: []string{"b@example.com", " B@example.com", "a@example.com", ""}, Subject: "x"},
		mailer.Message{To: []string{""}, Subject: "nobody"},
	)
	require.Len(t, queue.queued, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, queue.queued[0].To)

	queue.err = errors.New("queue full")
	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), mailer.Message{To: []string{"a@example.com"}})
	})
}

func TestNotificationServiceHolderEmailsFallback(t *testing.T) {
	email := "pokladna@example.com"
	svc := NewNotificationService(&queueStub{}, holderStub{{ID: 1}, {ID: 2, Email: &email}}, "admin@example.com", nil, nil)

	emails, err := svc.HolderEmails(context.Background(), "transactions")
	require.NoError(t, err)
	assert.Equal(t, []string{email}, emails)

	svc = NewNotificationService(&queueStub{}, holderStub{{ID: 1}}, "admin@example.com", nil, nil)
	emails, err = svc.HolderEmails(context.Background(), "transactions")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@example.com"}, emails)
}

func TestMailHandlerPropagatesFailure(t *testing.T) {
	sender := &senderStub{err: errors.New("relay refused")}
	handler := NewMailHandler(sender, nil, nil)

	err := handler(context.Background(), jobs.Job[mailer.Message]{ID: "1", Payload: mailer.Message{To: []string{"a@example.com"}, Subject: "x"}})
	assert.EqualError(t, err, "relay refused")
	assert.Len(t, sender.sent, 1)

	sender.err = nil
	assert.NoError(t, handler(context.Background(), jobs.Job[mailer.Message]{ID: "2"}))
}
