package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/pkg/config"
)

func TestBuildMessageSingleRecipient(t *testing.T) {
	raw := BuildMessage("club@example.com", Message{
		To:      []string{"coach@example.com"},
		Subject: "Reminder",
		Body:    "line one\nline two",
	})

	assert.Contains(t, raw, "From: club@example.com\r\n")
	assert.Contains(t, raw, "To: coach@example.com\r\n")
	assert.Contains(t, raw, "Subject: Reminder\r\n")
	assert.True(t, strings.HasSuffix(raw, "line one\r\nline two"))
}

func TestBuildMessageEncodesNonASCIISubject(t *testing.T) {
	raw := BuildMessage("club@example.com", Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Omluva z tréninku",
	})

	assert.Contains(t, raw, "To: club@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?UTF-8?B?")
	assert.NotContains(t, raw, "b@example.com")
}

func TestNewFallsBackToLogSender(t *testing.T) {
	sender := New(config.MailConfig{}, zap.NewNop())
	_, ok := sender.(*LogSender)
	require.True(t, ok)

	assert.NoError(t, sender.Send(context.Background(), Message{To: []string{"x@example.com"}}))
	assert.ErrorIs(t, sender.Send(context.Background(), Message{}), ErrNoRecipients)
}
