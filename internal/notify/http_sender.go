package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tasvirbox/api/internal/config"
)

// HTTPSender posts messages to a provider gateway. The wire format is the
// lowest common denominator most SMS gateways accept; anything fancier
// belongs in a dedicated provider implementation.
type HTTPSender struct {
	cfg    config.SMSConfig
	client *http.Client
}

func NewHTTPSender(cfg config.SMSConfig) *HTTPSender {
	return &HTTPSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func (s *HTTPSender) Send(ctx context.Context, mobile string, message string) error {
	body, err := json.Marshal(sendRequest{
		To:      mobile,
		From:    s.cfg.Sender,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms provider returned %d", resp.StatusCode)
	}
	return nil
}
