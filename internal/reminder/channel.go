package reminder

import (
	"context"

	"expiry-reminders/internal/models"
)

// Delivery is what an adapter reports for an accepted message.
type Delivery struct {
	ProviderMessageID string
}

// Channel is the capability every messaging adapter implements. Send returns
// a DeliveryError when the provider rejects or cannot take the message.
type Channel interface {
	Name() models.ChannelName
	Send(ctx context.Context, address, text string) (Delivery, error)
}

// BatchConfig is loaded once at the start of every batch and passed down
// explicitly: the active template per channel and the channels that have
// adapter credentials configured.
type BatchConfig struct {
	Templates map[models.ChannelName]string
	Channels  map[models.ChannelName]bool
}

func (c BatchConfig) Enabled(ch models.ChannelName) bool {
	return c.Channels[ch]
}

// loadBatchConfig merges stored active templates over the fallbacks.
func loadBatchConfig(ctx context.Context, store Store, fallback map[models.ChannelName]string, channels map[models.ChannelName]Channel) (BatchConfig, error) {
	stored, err := store.ActiveTemplates(ctx)
	if err != nil {
		return BatchConfig{}, err
	}

	cfg := BatchConfig{
		Templates: make(map[models.ChannelName]string, len(models.Channels)),
		Channels:  make(map[models.ChannelName]bool, len(channels)),
	}
	for _, name := range models.Channels {
		if body, ok := stored[name]; ok && body != "" {
			cfg.Templates[name] = body
		} else if body, ok := fallback[name]; ok {
			cfg.Templates[name] = body
		}
	}
	for name := range channels {
		if _, ok := cfg.Templates[name]; ok {
			cfg.Channels[name] = true
		}
	}
	return cfg, nil
}
