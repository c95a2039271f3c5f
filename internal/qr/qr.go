// Package qr encodes and decodes the business linking payload. The payload is
// the literal text "business:<PIN>"; the PIN is the whole capability.
package qr

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/khata-app/khata_backend/internal/fault"
)

const payloadPrefix = "business:"

// DefaultSize is the rendered PNG edge length in pixels.
const DefaultSize = 256

// Payload returns the linking payload for an access PIN.
func Payload(pin string) string {
	return payloadPrefix + pin
}

// ParsePayload extracts the PIN from a scanned payload. Anything without the
// exact prefix is rejected.
func ParsePayload(payload string) (string, error) {
	if !strings.HasPrefix(payload, payloadPrefix) {
		return "", fmt.Errorf("%w: not a business linking code", fault.ErrInvalid)
	}
	pin := strings.TrimSpace(strings.TrimPrefix(payload, payloadPrefix))
	if pin == "" {
		return "", fmt.Errorf("%w: linking code has no pin", fault.ErrInvalid)
	}
	return pin, nil
}

// PNG renders the linking payload for a PIN as a PNG image.
func PNG(pin string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(Payload(pin), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
