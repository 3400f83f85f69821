package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	BotToken string `yaml:"bot_token" json:"-"`
	ChatID   string `yaml:"chat_id" json:"chatId"`
	BaseURL  string `yaml:"base_url" json:"baseUrl" default:"https://api.telegram.org"`
}

// TelegramNotifier sends messages via the Telegram Bot API
type TelegramNotifier struct {
	config TelegramConfig
	client *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{config: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) Send(ctx context.Context, n *Notification) error {
	payload := map[string]interface{}{
		"chat_id":    t.config.ChatID,
		"text":       fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message)),
		"parse_mode": "HTML",
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.config.BaseURL, "/"), t.config.BotToken)
	return postJSON(ctx, t.client, url, payload, http.StatusOK)
}

func escapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"-"`
}

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(cfg DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{webhookURL: cfg.WebhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) Send(ctx context.Context, n *Notification) error {
	color := 0x2ECC71
	if !n.Positive {
		color = 0xE74C3C
	}
	embed := map[string]interface{}{
		"title":       n.Title,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.Timestamp.Format(time.RFC3339),
	}
	if n.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": n.Symbol, "inline": true},
		}
		if n.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.5f", n.Price), "inline": true,
			})
		}
		embed["fields"] = fields
	}
	payload := map[string]interface{}{"embeds": []map[string]interface{}{embed}}
	return postJSON(ctx, d.client, d.webhookURL, payload, http.StatusOK, http.StatusNoContent)
}

// postJSON posts payload and accepts the given status codes. Client errors other than 429
// are permanent and stop retries.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, accept ...int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			return nil
		}
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}
