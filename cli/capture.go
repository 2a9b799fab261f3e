package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolwatch/fingerprint"
	"github.com/petal-labs/toolwatch/watch"
)

// addCaptureFlags registers the flags that describe a single tool capture.
func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().String("tool", "", "Tool name (required)")
	cmd.Flags().String("schema", "", "Path to the tool's schema JSON (required)")
	cmd.Flags().String("responses", "", "Path to a JSON array of sample response records")
	cmd.Flags().String("tool-version", "", "Declared tool version (default: unknown)")
}

// captureFromFlags fingerprints the tool described by the capture flags.
func captureFromFlags(cmd *cobra.Command) (fingerprint.Fingerprint, error) {
	toolName, _ := cmd.Flags().GetString("tool")
	schemaPath, _ := cmd.Flags().GetString("schema")
	responsesPath, _ := cmd.Flags().GetString("responses")
	version, _ := cmd.Flags().GetString("tool-version")

	if strings.TrimSpace(toolName) == "" {
		return fingerprint.Fingerprint{}, exitError(exitValidation, "--tool is required")
	}
	if strings.TrimSpace(schemaPath) == "" {
		return fingerprint.Fingerprint{}, exitError(exitValidation, "--schema is required")
	}

	capturer := watch.NewFileCapturer(nil)
	fp, err := capturer.Capture(cmd.Context(), toolName, watch.ToolDeclaration{
		Schema:    schemaPath,
		Responses: responsesPath,
		Version:   version,
	})
	if err != nil {
		return fingerprint.Fingerprint{}, exitError(exitValidation, "capturing %q: %v", toolName, err)
	}
	return fp, nil
}
