package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSendFailed wraps delivery failures reported by the email provider.
var ErrSendFailed = errors.New("email: send failed")

const defaultSendTimeout = 10 * time.Second

// Envelope is a rendered message ready for delivery.
type Envelope struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, envelope Envelope) (string, error)
}

// HTTPSenderConfig configures the hosted email provider client.
type HTTPSenderConfig struct {
	Endpoint   string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// HTTPSender posts messages to a hosted email-sending API using bearer authentication.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

// NewHTTPSender validates configuration and constructs the sender.
func NewHTTPSender(cfg HTTPSenderConfig) (*HTTPSender, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("email: endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("email: api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("email: from address is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		from:     strings.TrimSpace(cfg.From),
		client:   client,
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers the envelope and returns the provider message id.
func (s *HTTPSender) Send(ctx context.Context, envelope Envelope) (string, error) {
	to := strings.TrimSpace(envelope.To)
	if to == "" {
		return "", errors.New("email: recipient is required")
	}
	body, err := json.Marshal(sendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: envelope.Subject,
		HTML:    envelope.HTML,
		Text:    envelope.Text,
	})
	if err != nil {
		return "", fmt.Errorf("email: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: provider returned %d: %s", ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded sendResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return "", fmt.Errorf("%w: decode response: %v", ErrSendFailed, err)
		}
	}
	return decoded.ID, nil
}
