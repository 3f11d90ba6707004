package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-reminders/internal/common/config"
	"expiry-reminders/internal/models"
)

func TestChannels(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ChannelsConfig
		expected []models.ChannelName
	}{
		{
			name: "both enabled",
			cfg: config.ChannelsConfig{
				WhatsApp: config.WhatsAppConfig{Enabled: true, PhoneNumberID: "1", AccessToken: "t", Template: "wa", RatePerMinute: 60},
				Telegram: config.TelegramConfig{Enabled: true, BotToken: "b", Template: "tg", RatePerMinute: 1200},
			},
			expected: []models.ChannelName{models.ChannelWhatsApp, models.ChannelTelegram},
		},
		{
			name: "telegram only",
			cfg: config.ChannelsConfig{
				WhatsApp: config.WhatsAppConfig{Template: "wa"},
				Telegram: config.TelegramConfig{Enabled: true, BotToken: "b", Template: "tg"},
			},
			expected: []models.ChannelName{models.ChannelTelegram},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels, fallback, rates := Channels(tt.cfg, 5*time.Second)
			require.Len(t, channels, len(tt.expected))
			for i, ch := range channels {
				assert.Equal(t, tt.expected[i], ch.Name())
				assert.NotEmpty(t, fallback[ch.Name()])
				assert.Contains(t, rates, ch.Name())
			}
			assert.Len(t, fallback, len(tt.expected))
		})
	}
}

func TestDispatchOptions(t *testing.T) {
	var cfg config.ReminderConfig
	cfg.Workers = 8
	cfg.LockTTL = 60000
	cfg.SendTime = 15000
	cfg.Retry = config.RetryConfig{MaxAttempts: 4, BaseDelay: 500, MaxDelay: 4000}
	cfg.ResendFailed = true

	rates := map[models.ChannelName]int{models.ChannelWhatsApp: 30}
	opts := DispatchOptions(cfg, rates)

	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, time.Minute, opts.LockTTL)
	assert.Equal(t, 15*time.Second, opts.SendTimeout)
	assert.Equal(t, 4, opts.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, opts.Retry.BaseDelay)
	assert.Equal(t, 4*time.Second, opts.Retry.MaxDelay)
	assert.True(t, opts.ResendFailed)
	assert.Equal(t, 30, opts.RatePerMinute[models.ChannelWhatsApp])
}
