// Package notify delivers operator alerts. Delivery is best-effort: a
// failed alert is logged and never interrupts trading.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logged wraps a Notifier so failures are logged at warn and swallowed.
type Logged struct {
	Next Notifier
	Log  *zap.Logger
}

func (l Logged) Notify(ctx context.Context, msg string) error {
	if l.Next == nil {
		return nil
	}
	if err := l.Next.Notify(ctx, msg); err != nil && l.Log != nil {
		l.Log.Warn("alert delivery failed", zap.Error(err), zap.String("message", msg))
	}
	return nil
}
