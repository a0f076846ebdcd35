// Package notification delivers operational alerts (a subscription lost for
// good, the storage breaker opening) to external channels.
package notification

import (
	"context"
	"errors"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log *logger.Entry
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.WithComponent("notify")}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	e := n.log.WithFields(logger.Fields(alert.Fields)).WithField("title", alert.Title)
	switch alert.Level {
	case AlertCritical:
		e.Error(alert.Message)
	case AlertWarning:
		e.Warn(alert.Message)
	default:
		e.Info(alert.Message)
	}
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
