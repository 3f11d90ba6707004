// Package telegram sends reminder messages through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "expiry-reminders/internal/common/errors"
	commonhttp "expiry-reminders/internal/common/http"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
)

type Config struct {
	BaseURL  string
	BotToken string
}

type Client struct {
	http *commonhttp.Client
	cfg  Config
}

func New(cfg Config, client *commonhttp.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{http: client, cfg: cfg}
}

func (c *Client) Name() models.ChannelName {
	return models.ChannelTelegram
}

type sendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers text to chatID. Only 429 answers and transport or server
// failures are retryable.
func (c *Client) Send(ctx context.Context, chatID, text string) (reminder.Delivery, error) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.cfg.BaseURL, c.cfg.BotToken)
	resp, err := c.http.PostJSON(ctx, url, nil, sendMessage{ChatID: chatID, Text: text})
	if err != nil {
		// The request URL embeds the bot token; keep it out of the log.
		return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelTelegram), redact(err, c.cfg.BotToken), true)
	}

	var out apiResponse
	if err := resp.Decode(&out); err != nil && resp.OK() {
		return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelTelegram), fmt.Errorf("decode response: %w", err), false)
	}

	if resp.OK() && out.OK {
		return reminder.Delivery{ProviderMessageID: strconv.FormatInt(out.Result.MessageID, 10)}, nil
	}

	detail := out.Description
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || out.ErrorCode == http.StatusTooManyRequests:
		se := apperrors.NewRateLimitedError(string(models.ChannelTelegram), cause)
		if out.Parameters.RetryAfter > 0 {
			se = se.WithMetadata("retryAfter", out.Parameters.RetryAfter)
		}
		return reminder.Delivery{}, se
	case resp.StatusCode >= 500:
		return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelTelegram), cause, true)
	default:
		return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelTelegram), cause, false)
	}
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "<token>"), cause: err}
}
