package alert

import (
	"context"
	"fmt"

	awsclient "expiry-reminders/internal/common/aws"
	"expiry-reminders/internal/common/config"
	"expiry-reminders/internal/common/logger"
)

// FromConfig builds the configured notifiers. It returns nil when alerts are
// disabled or no notifier is enabled.
func FromConfig(ctx context.Context, cfg config.AlertConfig, log logger.Logger) (*Multi, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsclient.LoadConfig(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var notifiers []Notifier
	if cfg.SES.Enabled {
		notifiers = append(notifiers, NewSESNotifier(awsclient.NewSESClient(awsCfg, cfg.SES.FromEmail), cfg.SES.To))
	}
	if cfg.SNS.Enabled {
		notifiers = append(notifiers, NewSNSNotifier(awsclient.NewSNSClient(awsCfg, cfg.SNS.TopicARN)))
	}
	if len(notifiers) == 0 {
		return nil, nil
	}

	log.Info("operator alerts enabled", map[string]interface{}{
		"ses": cfg.SES.Enabled,
		"sns": cfg.SNS.Enabled,
	})
	return NewMulti(log, notifiers...), nil
}
