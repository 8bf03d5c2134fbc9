package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drover - live block volume migration between hosts",
	Long: `Drover runs one daemon per storage host and moves block volumes
between hosts without interrupting the workloads using them.

Volumes live on local LVM storage. A migration builds a dm-clone
overlay on the destination that serves reads from the source over
iSCSI while the data hydrates in the background; once the copy is
complete the overlay collapses into a plain local mapping.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Drover version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(serviceCmd)
}
