package notification

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// WhatsAppLink builds a wa.me deep link that opens a chat with the given
// phone number and a pre-filled message. Reminders are delivered by
// redirecting the business owner's browser to this link rather than by
// calling a messaging API.
func WhatsAppLink(phone, body string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return fmt.Sprintf("https://wa.me/%s?text=%s", digits, url.QueryEscape(body))
}

// ReminderBody renders the default reminder message for an outstanding balance.
func ReminderBody(businessName string, balance decimal.Decimal) string {
	return fmt.Sprintf("Hello! This is a friendly reminder from %s. Your outstanding balance is %s. Please settle it at your earliest convenience. Thank you!", businessName, balance.StringFixed(2))
}
