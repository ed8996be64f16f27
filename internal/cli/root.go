// Package cli defines the daemon's command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/octa-computer/transfer-manager/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "transfer-manager",
	Short: "Local transfer daemon for the octa render farm",
	Long: `transfer-manager runs on an artist's machine and moves job data
between it and the render farm: it uploads packaged job archives to
object storage, registers the job with the queue manager, and downloads
finished outputs. The farm's web UI drives it over a local REST API.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s (built %s)\n", version.ServiceName, version.Version, version.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
