package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolwatch/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toolwatch",
	Short: "Tool mutation watchdog CLI",
	Long:  "Toolwatch — fingerprint external tool integrations and detect unannounced schema and response-shape mutations.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("toolwatch version %s\n", version))

	rootCmd.AddCommand(cli.NewBaselineCmd())
	rootCmd.AddCommand(cli.NewCheckCmd())
	rootCmd.AddCommand(cli.NewAlertsCmd())
	rootCmd.AddCommand(cli.NewBaselinesCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
}
