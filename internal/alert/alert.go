// Package alert delivers operator notifications about batch health.
package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"

	awsclient "expiry-reminders/internal/common/aws"
	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	Severity Severity
	Subject  string
	Body     string
	Fields   map[string]string
}

// Text is the plain text form used by e-mail and topic messages.
func (a Alert) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n\n%s\n", strings.ToUpper(string(a.Severity)), a.Subject, a.Body)
	if len(a.Fields) > 0 {
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, a.Fields[k])
		}
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

type SESNotifier struct {
	client *awsclient.SESClient
	to     []string
}

func NewSESNotifier(client *awsclient.SESClient, to []string) *SESNotifier {
	return &SESNotifier{client: client, to: to}
}

func (n *SESNotifier) Notify(ctx context.Context, a Alert) error {
	if len(n.to) == 0 {
		return nil
	}
	if _, err := n.client.SendText(ctx, n.to, a.Subject, a.Text()); err != nil {
		return apperrors.NewAlertFailedError("ses", err)
	}
	return nil
}

type SNSNotifier struct {
	client *awsclient.SNSClient
}

func NewSNSNotifier(client *awsclient.SNSClient) *SNSNotifier {
	return &SNSNotifier{client: client}
}

func (n *SNSNotifier) Notify(ctx context.Context, a Alert) error {
	attrs := map[string]string{"severity": string(a.Severity)}
	if id := a.Fields["batchId"]; id != "" {
		attrs["batchId"] = id
	}
	if _, err := n.client.PublishTopic(ctx, a.Subject, a.Text(), attrs); err != nil {
		return apperrors.NewAlertFailedError("sns", err)
	}
	return nil
}

// Multi fans an alert out to every notifier. Each notifier is tried even if
// an earlier one fails; the first error is returned.
type Multi struct {
	notifiers []Notifier
	logger    logger.Logger
}

func NewMulti(log logger.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, logger: log}
}

func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Notify(ctx context.Context, a Alert) error {
	var first error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			m.logger.Warn("alert notifier failed", map[string]interface{}{
				"subject": a.Subject,
				"error":   err,
			})
			if first == nil {
				first = err
			}
		}
	}
	return first
}
