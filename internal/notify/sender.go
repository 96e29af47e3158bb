// Package notify is the outbound notification capability. The core only
// knows Send; which provider carries the message is configuration.
package notify

import (
	"context"
	"fmt"

	"tasvirbox/api/internal/config"

	"github.com/rs/zerolog"
)

// Sender delivers a short message to a mobile number. A returned error
// aborts the enclosing registration/resend transaction.
type Sender interface {
	Send(ctx context.Context, mobile string, message string) error
}

func NewSender(cfg config.SMSConfig, log zerolog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "console", "":
		return &ConsoleSender{log: log}, nil
	case "http":
		return NewHTTPSender(cfg), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}

// ConsoleSender logs instead of sending. Development only.
type ConsoleSender struct {
	log zerolog.Logger
}

func (s *ConsoleSender) Send(_ context.Context, mobile string, message string) error {
	s.log.Info().
		Str("mobile", mobile).
		Str("message", message).
		Msg("sms (console sender)")
	return nil
}
