package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/spf13/cobra"
)

func newNormalizeCmd(root *rootOptions) *cobra.Command {
	var (
		output  string
		dataURL bool
		opts    = pipeline.DefaultOptions()
	)

	cmd := &cobra.Command{
		Use:   "normalize <input>",
		Short: "Resize and re-encode a cropped image",
		Long: `Resize a cropped image to at most --max-width pixels wide (never upscaling)
and re-encode it. Use "-" to read from stdin.

Example:
  cropctl normalize crop.png -o avatar.jpg
  cropctl normalize - --data-url < crop.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			src, err := readInput(cmd, args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if bytes.HasPrefix(src, []byte("data:")) {
				if src, err = pipeline.DecodeDataURL(string(src)); err != nil {
					return err
				}
			}

			if err := pipeline.Startup(); err != nil {
				return fmt.Errorf("start image backend: %w", err)
			}
			defer pipeline.Shutdown()

			normalizer, err := pipeline.NewNormalizer(logger)
			if err != nil {
				return err
			}
			result, err := normalizer.Process(cmd.Context(), src, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dataURL {
				_, err = fmt.Fprintln(out, result.DataURL())
				return err
			}

			if output == "" {
				output = defaultOutputPath(args[0], result.Format)
			}
			if err := os.WriteFile(output, result.Data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			_, err = fmt.Fprintf(out, "wrote %s (%dx%d, ~%d KB)\n", output, result.Width, result.Height, result.EstimatedSizeKB)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <input>.normalized.<ext>)")
	cmd.Flags().BoolVar(&dataURL, "data-url", false, "Print a data URL to stdout instead of writing a file")
	cmd.Flags().IntVar(&opts.MaxWidth, "max-width", opts.MaxWidth, "Maximum output width in pixels")
	cmd.Flags().Float64VarP(&opts.Quality, "quality", "q", opts.Quality, "Encoder quality in (0, 1]")
	cmd.Flags().StringVar(&opts.Format, "format", opts.Format, "Output format (jpeg, png, webp)")
	return cmd
}

func defaultOutputPath(input, format string) string {
	if input == "-" {
		input = "stdin"
	}
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ".normalized." + ext
}
