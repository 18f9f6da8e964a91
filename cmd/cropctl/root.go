package main

import (
	"io"
	"os"

	"github.com/dunamismax/cropper/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cropctl",
		Short: "Normalize and preview cropped images offline",
		Long: `cropctl runs the cropper's image pipeline without the HTTP service.

Example usage:
  cropctl normalize crop.png -o avatar.jpg          # Resize to 800px wide, JPEG q=0.85
  cropctl normalize crop.png --max-width 400 -q 0.7 # Smaller, lower quality
  cropctl preview photo.jpg --op rotate_right --op zoom=1.5 -o preview.png
  cropctl estimate "data:image/jpeg;base64,..."     # Size estimate in KB`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newNormalizeCmd(opts),
		newPreviewCmd(),
		newEstimateCmd(),
	)
	return cmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return logging.New(logging.Config{Level: o.logLevel, Format: "console"})
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
