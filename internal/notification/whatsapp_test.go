package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata-app/khata_backend/internal/logging"
)

func TestWhatsAppLink(t *testing.T) {
	link := WhatsAppLink("+91 98765-43210", "pay up")
	assert.Equal(t, "https://wa.me/919876543210?text=pay+up", link)
}

func TestWhatsAppLinkEscapesBody(t *testing.T) {
	link := WhatsAppLink("1234567", "balance: 50 & rising")
	assert.True(t, strings.HasPrefix(link, "https://wa.me/1234567?text="))
	assert.NotContains(t, link, " ")
	assert.NotContains(t, link, "&text")
}

func TestReminderBody(t *testing.T) {
	body := ReminderBody("Sharma Kirana", decimal.RequireFromString("150.5"))
	assert.Contains(t, body, "Sharma Kirana")
	assert.Contains(t, body, "150.50")
}

func TestLoggerNotifierSend(t *testing.T) {
	n := NewLoggerNotifier(logging.Discard())
	err := n.Send(context.Background(), Message{Kind: KindReminder, Destination: "1234567", Body: "hi"})
	require.NoError(t, err)

	var nilNotifier *LoggerNotifier
	require.NoError(t, nilNotifier.Send(context.Background(), Message{}))
}
