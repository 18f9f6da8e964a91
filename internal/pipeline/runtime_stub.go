//go:build !govips || !cgo

package pipeline

// Startup is a no-op for the pure Go backend.
func Startup() error { return nil }

func Shutdown() {}

func Backend() string { return "std" }

func newTransformer() (Transformer, error) {
	return newStdlibTransformer(), nil
}
