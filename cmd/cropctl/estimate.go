package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/spf13/cobra"
)

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <data-url|base64|file|->",
		Short: "Estimate the decoded size of a base64 payload in KB",
		Long: `Print round(ceil(L*3/4)/1024) for a base64 payload of length L.
A leading "data:...;base64," header is ignored. Padding is not subtracted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := args[0]
			if payload == "-" {
				raw, err := readInput(cmd, payload)
				if err != nil {
					return err
				}
				payload = string(raw)
			} else if raw, err := os.ReadFile(payload); err == nil {
				payload = string(raw)
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d KB\n", pipeline.EstimateDataURLSizeKB(strings.TrimSpace(payload)))
			return err
		},
	}
}
