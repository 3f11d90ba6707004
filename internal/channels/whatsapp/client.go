// Package whatsapp sends reminder messages through the WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apperrors "expiry-reminders/internal/common/errors"
	commonhttp "expiry-reminders/internal/common/http"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
)

type Config struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
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
	return models.ChannelWhatsApp
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a plain text message to the number. Transport failures, 429 and
// 5xx answers are retryable; other rejections are permanent.
func (c *Client) Send(ctx context.Context, to, text string) (reminder.Delivery, error) {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               normalizeNumber(to),
		Type:             "text",
	}
	msg.Text.Body = text

	url := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	resp, err := c.http.PostJSON(ctx, url, map[string]string{
		"Authorization": "Bearer " + c.cfg.AccessToken,
	}, msg)
	if err != nil {
		return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelWhatsApp), err, true)
	}

	var out sendResponse
	_ = resp.Decode(&out)

	if !resp.OK() {
		detail := fmt.Errorf("HTTP %d", resp.StatusCode)
		if out.Error != nil {
			detail = fmt.Errorf("HTTP %d: %s (code %d)", resp.StatusCode, out.Error.Message, out.Error.Code)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return reminder.Delivery{}, apperrors.NewRateLimitedError(string(models.ChannelWhatsApp), detail)
		case resp.StatusCode >= 500:
			return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelWhatsApp), detail, true)
		default:
			return reminder.Delivery{}, apperrors.NewDeliveryError(string(models.ChannelWhatsApp), detail, false)
		}
	}

	var id string
	if len(out.Messages) > 0 {
		id = out.Messages[0].ID
	}
	return reminder.Delivery{ProviderMessageID: id}, nil
}

// normalizeNumber strips formatting so "+966 50-000 0001" becomes
// "966500000001".
func normalizeNumber(n string) string {
	var b strings.Builder
	for _, r := range n {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
