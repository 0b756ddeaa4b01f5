package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rivernet/pkg/network"
	osmparser "rivernet/pkg/osm"
	"rivernet/pkg/table"
)

var importCmd = &cobra.Command{
	Use:   "import --input <file.osm.pbf> [--output reaches.csv]",
	Short: "Extract waterways from an OSM PBF file into a reach table",
	RunE:  runImport,
}

func init() {
	f := importCmd.Flags()
	f.String("input", "", "Path to .osm.pbf file")
	f.String("output", "reaches.csv", "Output reach table")
	f.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng")
	importCmd.MarkFlagRequired("input")
}

func runImport(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	bbox, _ := cmd.Flags().GetString("bbox")

	var opts osmparser.ParseOptions
	if bbox != "" {
		b, err := parseBBox(bbox)
		if err != nil {
			return err
		}
		opts.BBox = b
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}

	start := time.Now()
	log.Println("Opening OSM file...")
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	res, err := osmparser.Parse(cmd.Context(), f, opts)
	if err != nil {
		return fmt.Errorf("parse OSM data: %w", err)
	}

	n, err := network.New(res.Reaches)
	if err != nil {
		return err
	}
	if err := writeTable(output, n, table.WriteOptions{Geometry: true}); err != nil {
		return err
	}
	log.Printf("Done in %s. Wrote %d reaches from %d waterways to %s", time.Since(start).Round(time.Millisecond), n.Len(), res.Ways, output)
	return nil
}

func parseBBox(s string) (osmparser.BBox, error) {
	var minLat, minLng, maxLat, maxLng float64
	if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
		return osmparser.BBox{}, fmt.Errorf("invalid bbox format (expected minLat,minLng,maxLat,maxLng): %w", err)
	}
	if minLat >= maxLat || minLng >= maxLng {
		return osmparser.BBox{}, fmt.Errorf("invalid bbox %q: min must be below max", s)
	}
	return osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}, nil
}

// writeTable writes n to path through a temp file renamed into place.
func writeTable(path string, n *network.Network, opts table.WriteOptions) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := table.Write(f, n, opts); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write table: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
