package notifier

import (
	"context"

	"github.com/italolelis/filebot/internal/logctx"
)

// Notifier delivers a text to a user-facing surface.
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, content string) error

func (f Func) Notify(ctx context.Context, content string) error {
	return f(ctx, content)
}

// Multi fans a text out to several notifiers. Every notifier is tried; the
// first error is returned.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, content string) error {
	var first error

	for _, n := range m {
		if n == nil {
			continue
		}

		if err := n.Notify(ctx, content); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// BestEffort sends content through n and only logs a failure.
func BestEffort(ctx context.Context, n Notifier, content string) {
	if n == nil {
		return
	}

	if err := n.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to deliver notification", "err", err)
	}
}
