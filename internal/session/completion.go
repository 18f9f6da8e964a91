package session

import (
	"github.com/dunamismax/cropper/internal/domain"
	"github.com/dunamismax/cropper/internal/future"
)

// Completion resolves once the committed crop is normalized, fails, or is
// discarded because its session went away.
type Completion = future.Future[domain.CropEvent]
