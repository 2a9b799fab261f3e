package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewBaselinesCmd creates the "baselines" subcommand.
func NewBaselinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baselines",
		Short: "List stored baseline fingerprints",
		RunE:  runBaselines,
	}
	cmd.Flags().Bool("json", false, "Emit baselines as JSON")
	addStoreFlags(cmd)
	return cmd
}

func runBaselines(cmd *cobra.Command, _ []string) error {
	baselineStore, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	baselines, err := baselineStore.Baselines(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing baselines: %v", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(baselines, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding baselines: %v", err)
		}
		_, _ = out.Write(append(data, '\n'))
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "TOOL\tVERSION\tSCHEMA\tRESPONSES\tCAPTURED")
	for _, fp := range baselines {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			fp.ToolName,
			fp.Version,
			shortHash(fp.SchemaHash),
			shortHash(fp.ResponsePatternHash),
			fp.CapturedAt.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
