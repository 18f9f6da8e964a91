package webhook

import (
	"context"
	"strings"

	"github.com/dunamismax/cropper/internal/domain"
)

// Notifier posts crop events to a fixed host callback URL.
type Notifier struct {
	Client   *Client
	Endpoint string
	// IncludeData controls whether the encoded image travels in the payload.
	// When false only dimensions and the size estimate are sent.
	IncludeData bool
}

func (n Notifier) Notify(ctx context.Context, event domain.CropEvent) error {
	if n.Client == nil || strings.TrimSpace(n.Endpoint) == "" {
		return nil
	}
	if !n.IncludeData {
		event.EncodedData = ""
	}
	return n.Client.Send(ctx, n.Endpoint, event.Event, event)
}
