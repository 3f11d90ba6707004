package models

import "strings"

// ChannelName identifies one of the supported messaging transports.
type ChannelName string

const (
	ChannelWhatsApp ChannelName = "whatsapp"
	ChannelTelegram ChannelName = "telegram"
)

// Channels is the closed set of supported transports.
var Channels = []ChannelName{ChannelWhatsApp, ChannelTelegram}

func (c ChannelName) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// Recipient is a contact with zero, one or two configured channels.
type Recipient struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	WhatsAppNumber string `json:"whatsappNumber,omitempty"`
	TelegramChatID string `json:"telegramChatId,omitempty"`
}

// Destination is one deliverable address on one channel.
type Destination struct {
	Channel ChannelName `json:"channel"`
	Address string      `json:"address"`
}

// Destinations lists the channels the recipient can be reached on. An empty
// result means the recipient must be skipped.
func (r Recipient) Destinations() []Destination {
	var out []Destination
	if n := strings.TrimSpace(r.WhatsAppNumber); n != "" {
		out = append(out, Destination{Channel: ChannelWhatsApp, Address: n})
	}
	if id := strings.TrimSpace(r.TelegramChatID); id != "" {
		out = append(out, Destination{Channel: ChannelTelegram, Address: id})
	}
	return out
}
