package pipeline

import "github.com/dunamismax/cropper/internal/future"

// Pending is the deferred outcome of one Normalize call: Done, Wait(ctx) and
// the non-blocking Poll.
type Pending = future.Future[Result]

// NewPending returns an unresolved Pending and the function that resolves it.
func NewPending() (*Pending, func(Result, error)) {
	return future.New[Result]()
}
