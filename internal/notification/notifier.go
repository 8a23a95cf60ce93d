// Package notification delivers alerts about emitted signals and service
// incidents to external channels (Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"signal-systemv1/internal/model"
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
	Level   AlertLevel         `json:"level"`
	Title   string             `json:"title"`
	Message string             `json:"message"`
	Signal  *model.SignalEvent `json:"signal,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to each notifier and joins the failures.
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

// SignalAlert renders a signal as an info alert.
func SignalAlert(ev model.SignalEvent) Alert {
	msg := fmt.Sprintf("%s at %g (fast %.6g, slow %.6g)", ev.Action, ev.Price, ev.Fast, ev.Slow)
	if ev.Reason != "" {
		msg += "\n" + ev.Reason
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", ev.Pair, ev.Action),
		Message: msg,
		Signal:  &ev,
	}
}

// Sink adapts a Notifier to model.SignalSink.
type Sink struct {
	n Notifier
}

func NewSink(n Notifier) *Sink {
	return &Sink{n: n}
}

func (s *Sink) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	return s.n.Send(ctx, SignalAlert(ev))
}
