package session

import (
	"context"
	"errors"
	"testing"

	"github.com/dunamismax/cropper/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMultiNotifierDeliversToAll(t *testing.T) {
	var seen []string
	boom := errors.New("boom")

	n := MultiNotifier{
		NotifierFunc(func(_ context.Context, e domain.CropEvent) error {
			seen = append(seen, "a:"+e.SessionID)
			return boom
		}),
		nil,
		NotifierFunc(func(_ context.Context, e domain.CropEvent) error {
			seen = append(seen, "b:"+e.SessionID)
			return nil
		}),
	}

	err := n.Notify(context.Background(), domain.CropEvent{SessionID: "s1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:s1", "b:s1"}, seen)
}
