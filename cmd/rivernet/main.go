// Command rivernet imports, processes and inspects river networks.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rivernet",
	Short: "Propagate attributes along a directed river network",
	Long: `rivernet builds a river network from a reach table, assigns branches,
downstream distances and drainage-area segments, and propagates smoothed,
interpolated and stream power attributes along it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(importCmd, runCmd, snapCmd, statsCmd, exportCmd, compareCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
