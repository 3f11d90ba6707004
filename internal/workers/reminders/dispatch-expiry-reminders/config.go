package dispatchexpiryreminders

import (
	"time"

	"expiry-reminders/internal/common/config"
)

type Config struct {
	// Timeout bounds one batch run started by a job.
	Timeout time.Duration
}

func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Config{Timeout: timeout}
}
