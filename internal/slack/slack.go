package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second

	ReasonMissingWebhookURL = "missing_webhook_url"
	ReasonSlackError        = "slack_error"
)

// Payload is an incoming-webhook message.
type Payload struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text, Emoji: true}}
}

func Section(markdown string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: markdown}}
}

func Context(markdown string) Block {
	return Block{Type: "context", Elements: []Text{{Type: "mrkdwn", Text: markdown}}}
}

// Result describes a delivery attempt. Failures are reported here rather
// than as errors.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
}

type Sender struct {
	WebhookURL string
	Client     *http.Client
	Logger     *slog.Logger
}

func (s Sender) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (s Sender) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Send posts payload to url, or to the sender's configured webhook when url
// is empty. It makes a single attempt bounded by the client's timeout.
func (s Sender) Send(ctx context.Context, payload Payload, url string) Result {
	target := strings.TrimSpace(url)
	if target == "" {
		target = strings.TrimSpace(s.WebhookURL)
	}
	if target == "" {
		s.logger().Info("slack webhook not configured; skipping delivery")
		return Result{OK: false, Reason: ReasonMissingWebhookURL}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{OK: false, Reason: ReasonSlackError, Body: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return Result{OK: false, Reason: ReasonSlackError, Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.client().Do(req)
	if err != nil {
		s.logger().Warn("slack delivery failed", "error", err)
		return Result{OK: false, Reason: ReasonSlackError, Body: err.Error()}
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		s.logger().Warn("slack rejected payload", "status", res.StatusCode, "body", string(body))
		return Result{OK: false, Reason: ReasonSlackError, Status: res.StatusCode, Body: string(body)}
	}
	return Result{OK: true, Status: res.StatusCode}
}
