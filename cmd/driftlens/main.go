package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "driftlens",
		Short: "driftlens explains why a metric moved between two date windows",
		Long:  "driftlens runs the segment insight engine over an uploaded CSV: it finds the dimension segments that explain the difference between a baseline and a comparison period.",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path (defaults to driftlens.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(browseCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
