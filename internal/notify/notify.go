// Package notify delivers operator alerts. Delivery is best effort: Send
// reports success and never returns an error to the trading path.
package notify

import (
	"context"
	"fmt"
	"time"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

type TelegramConfig struct {
	Token  string
	ChatID string
	// BaseURL overrides the Telegram API host.
	BaseURL string
	Timeout time.Duration
}

type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

var _ interfaces.Notifier = (*Telegram)(nil)

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = telegramAPI
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Telegram{client: client, token: cfg.Token, chatID: cfg.ChatID}
}

type sendMessageResp struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, message string) bool {
	var out sendMessageResp
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": t.chatID, "text": message}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		logger.Warn(ctx, "Telegram send failed", "error", err)
		return false
	}
	if resp.IsError() || !out.OK {
		logger.Warn(ctx, "Telegram rejected message", "status", resp.StatusCode(), "description", out.Description)
		return false
	}
	return true
}

// Log writes alerts to the structured log only. It is used when no
// Telegram credentials are configured.
type Log struct{}

func (Log) Send(ctx context.Context, message string) bool {
	logger.Info(ctx, "ALERT", "message", message)
	return true
}

// Multi fans a message out and reports whether any target accepted it.
type Multi []interfaces.Notifier

func (m Multi) Send(ctx context.Context, message string) bool {
	ok := false
	for _, n := range m {
		if n.Send(ctx, message) {
			ok = true
		}
	}
	return ok
}
