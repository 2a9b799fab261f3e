package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewAlertsCmd creates the "alerts" subcommand.
func NewAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recorded mutation alerts",
		RunE:  runAlerts,
	}
	cmd.Flags().Bool("json", false, "Emit alerts as JSON")
	addStoreFlags(cmd)
	return cmd
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	alertStore, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := alertStore.Alerts(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing alerts: %v", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(alerts, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding alerts: %v", err)
		}
		_, _ = out.Write(append(data, '\n'))
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "TOOL\tCHANGE\tSEVERITY\tDETECTED\tID")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			alert.ToolName,
			alert.ChangeType,
			alert.Severity,
			alert.DetectedAt.UTC().Format(time.RFC3339),
			alert.ID,
		)
	}
	return writer.Flush()
}
