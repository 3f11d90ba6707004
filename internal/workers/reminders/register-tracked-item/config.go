package registertrackeditem

import (
	"time"

	"expiry-reminders/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 || timeout > time.Minute {
		timeout = 10 * time.Second
	}
	return &Config{Timeout: timeout}
}
