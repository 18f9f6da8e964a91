package session

import (
	"context"

	"github.com/dunamismax/cropper/internal/domain"
)

// Notifier delivers crop outcomes to the host.
type Notifier interface {
	Notify(ctx context.Context, event domain.CropEvent) error
}

type NotifierFunc func(ctx context.Context, event domain.CropEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event domain.CropEvent) error {
	return f(ctx, event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.CropEvent) error {
	return nil
}

// MultiNotifier fans an event out to every notifier and returns the first error.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event domain.CropEvent) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
