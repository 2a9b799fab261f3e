package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// NewBaselineCmd creates the "baseline" subcommand.
func NewBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Fingerprint a tool and store it as the trusted baseline",
		RunE:  runBaseline,
	}
	addCaptureFlags(cmd)
	addStoreFlags(cmd)
	return cmd
}

func runBaseline(cmd *cobra.Command, _ []string) error {
	fp, err := captureFromFlags(cmd)
	if err != nil {
		return err
	}

	baselineStore, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := baselineStore.PutBaseline(cmd.Context(), fp); err != nil {
		return exitError(exitRuntime, "saving baseline: %v", err)
	}

	data, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding baseline: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}
