package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"signalflow/config"
	"signalflow/logger"
)

// Webhook delivers messages to a WeChat Work group robot endpoint.
type Webhook struct {
	config config.NotifierConfig
	client *http.Client
	log    *logger.Log
}

func NewWebhook(cfg config.NotifierConfig) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		log:    logger.GetLogger(),
	}
}

type textPayload struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type markdownPayload struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Content string `json:"content"`
	} `json:"markdown"`
}

type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Send posts one message in the configured format. Disabled notifiers are a
// silent no-op so callers need no special casing.
func (w *Webhook) Send(ctx context.Context, content string) error {
	if !w.config.Enabled {
		return nil
	}

	var payload interface{}
	if w.config.Format == "markdown" {
		p := markdownPayload{MsgType: "markdown"}
		p.Markdown.Content = content
		payload = p
	} else {
		p := textPayload{MsgType: "text"}
		p.Text.Content = content
		payload = p
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	var decoded webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode webhook response: %w", err)
	}
	if decoded.ErrCode != 0 {
		return fmt.Errorf("webhook rejected message: %d %s", decoded.ErrCode, decoded.ErrMsg)
	}

	w.log.WithComponent("notifier").WithFields(logger.Fields{
		"format": w.config.Format,
		"bytes":  len(body),
	}).Info("notification delivered")
	return nil
}
