package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolwatch/mutation"
	"github.com/petal-labs/toolwatch/watch"
)

// NewCheckCmd creates the "check" subcommand.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fingerprint a tool and compare it against its stored baseline",
		Long: "Fingerprint a tool and compare it against its stored baseline. The first\n" +
			"observation of a tool is trusted and becomes the baseline. A detected\n" +
			"mutation is persisted to the alert log and exits with code 2.",
		RunE: runCheck,
	}
	addCaptureFlags(cmd)
	addStoreFlags(cmd)
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	current, err := captureFromFlags(cmd)
	if err != nil {
		return err
	}

	checkStore, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := watch.NewRegistry(watch.RegistryConfig{})
	baseline, found, err := checkStore.Baseline(cmd.Context(), current.ToolName)
	if err != nil {
		return exitError(exitRuntime, "loading baseline: %v", err)
	}
	if found {
		if err := registry.AddBaseline(baseline); err != nil {
			return exitError(exitRuntime, "seeding baseline: %v", err)
		}
	}

	alert, err := registry.Check(current.ToolName, current)
	if err != nil {
		if errors.Is(err, mutation.ErrToolMismatch) {
			return exitError(exitValidation, "checking %q: %v", current.ToolName, err)
		}
		return exitError(exitRuntime, "checking %q: %v", current.ToolName, err)
	}

	out := cmd.OutOrStdout()
	if !found {
		if err := checkStore.PutBaseline(cmd.Context(), current); err != nil {
			return exitError(exitRuntime, "saving baseline: %v", err)
		}
		fmt.Fprintf(out, "No baseline for %s; trusting this observation as the baseline.\n", current.ToolName)
		return nil
	}

	if alert == nil {
		fmt.Fprintf(out, "OK: %s matches its baseline.\n", current.ToolName)
		return nil
	}

	if err := checkStore.AppendAlert(cmd.Context(), *alert); err != nil {
		return exitError(exitRuntime, "saving alert: %v", err)
	}
	data, err := json.MarshalIndent(alert, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding alert: %v", err)
	}
	_, _ = out.Write(append(data, '\n'))
	return exitError(exitMutation, "mutation detected for %s: %s (%s)", alert.ToolName, alert.ChangeType, alert.Severity)
}
