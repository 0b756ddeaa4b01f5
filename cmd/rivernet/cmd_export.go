package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rivernet/pkg/network"
	"rivernet/pkg/table"
)

var exportCmd = &cobra.Command{
	Use:   "export --snapshot <network.bin> [--format geojson|csv]",
	Short: "Export a processed network snapshot for GIS viewers",
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.String("snapshot", "network.bin", "Binary network snapshot")
	f.String("format", "geojson", "Output format: geojson or csv")
	f.String("output", "", "Output file (stdout when empty)")
	f.String("unit", "m", "Distance unit for csv output")
}

func runExport(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("snapshot")
	format, _ := flags.GetString("format")
	output, _ := flags.GetString("output")
	unit, _ := flags.GetString("unit")

	n, err := network.ReadBinary(path)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "geojson":
		err = table.WriteGeoJSON(w, n)
	case "csv":
		err = table.Write(w, n, table.WriteOptions{Unit: unit, Geometry: true})
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	if output != "" {
		log.Printf("Exported %d reaches to %s", n.Len(), output)
	}
	return nil
}
