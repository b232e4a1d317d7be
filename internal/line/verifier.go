// Package line adapts the LINE Messaging API webhook: signature verification,
// envelope parsing into platform-neutral events, and postback payloads.
package line

import (
	"errors"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the base64 HMAC-SHA256 digest of the raw body.
const SignatureHeader = "X-Line-Signature"

var (
	// ErrMissingSignature is returned when the signature header is absent.
	ErrMissingSignature = errors.New("missing signature")
	// ErrInvalidSignature is returned when the digest does not match the body.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMissingSecret is returned when no channel secret is configured.
	ErrMissingSecret = errors.New("channel secret not configured")
)

// Verifier checks webhook bodies against the channel secret.
type Verifier struct {
	secret string
	skip   bool
}

// NewVerifier creates a Verifier. When skip is true every body is accepted;
// callers must never enable it in production.
func NewVerifier(secret string, skip bool) *Verifier {
	if skip {
		slog.Warn("line.NewVerifier: signature verification is DISABLED; use only for local development")
	}
	return &Verifier{secret: secret, skip: skip}
}

// Skipping reports whether verification is bypassed.
func (v *Verifier) Skipping() bool {
	return v.skip
}

// Verify computes the HMAC-SHA256 of the exact raw body and compares it with
// the base64-decoded signature header value.
func (v *Verifier) Verify(body []byte, signature string) error {
	if v.skip {
		slog.Warn("Verifier.Verify: signature check bypassed")
		return nil
	}
	if v.secret == "" {
		return ErrMissingSecret
	}
	if signature == "" {
		return ErrMissingSignature
	}
	if !webhook.ValidateSignature(v.secret, signature, body) {
		return ErrInvalidSignature
	}
	return nil
}
