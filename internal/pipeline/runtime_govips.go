//go:build govips && cgo

package pipeline

import (
	"runtime"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

// libvips is process global. Startup and Shutdown are reference counted so the
// API and the CLI can each bracket their own use.
var vipsRuntime struct {
	mu   sync.Mutex
	refs int
}

func Startup() error {
	vipsRuntime.mu.Lock()
	defer vipsRuntime.mu.Unlock()

	if vipsRuntime.refs == 0 {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: runtime.GOMAXPROCS(0),
			MaxCacheFiles:    0,
			MaxCacheMem:      32 << 20,
			MaxCacheSize:     16,
		})
	}
	vipsRuntime.refs++
	return nil
}

func Shutdown() {
	vipsRuntime.mu.Lock()
	defer vipsRuntime.mu.Unlock()

	if vipsRuntime.refs == 0 {
		return
	}
	vipsRuntime.refs--
	if vipsRuntime.refs == 0 {
		vips.Shutdown()
	}
}

func Backend() string {
	return "govips"
}

func newTransformer() (Transformer, error) {
	return govipsTransformer{}, nil
}
