package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"rivernet/pkg/config"
	"rivernet/pkg/network"
	"rivernet/pkg/pipeline"
	"rivernet/pkg/station"
	"rivernet/pkg/table"
)

var runCmd = &cobra.Command{
	Use:   "run --input <reaches.csv> [--stations stations.csv] [--config rivernet.yaml]",
	Short: "Process a reach table and write the annotated table and snapshot",
	RunE:  runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.String("input", "", "Input reach table (CSV)")
	f.String("stations", "", "Optional station table (CSV)")
	f.String("config", "", "YAML config file (defaults when empty)")
	f.String("output", "network.csv", "Output reach table")
	f.String("snapshot", "", "Optional binary snapshot for the query server")
	f.Bool("strict", false, "Fail on any data-quality issue")
	f.Bool("geometry", false, "Include WKT geometry in the output table")
	f.String("metrics-file", "", "Write run metrics in Prometheus text format (node_exporter textfile collector)")
	runCmd.MarkFlagRequired("input")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	input, _ := flags.GetString("input")
	stationsPath, _ := flags.GetString("stations")
	cfgPath, _ := flags.GetString("config")
	output, _ := flags.GetString("output")
	snapshot, _ := flags.GetString("snapshot")
	geometry, _ := flags.GetBool("geometry")
	metricsFile, _ := flags.GetString("metrics-file")

	start := time.Now()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}

	tbl, err := readReaches(input)
	if err != nil {
		return err
	}
	log.Printf("Read %d reaches from %s", len(tbl.Reaches), input)

	var stations []station.Station
	if stationsPath != "" {
		if stations, err = readStations(stationsPath); err != nil {
			return err
		}
		log.Printf("Read %d stations from %s", len(stations), stationsPath)
	}

	m := pipeline.NewMetrics()
	n, rep, runErr := pipeline.Run(cmd.Context(), cfg, pipeline.Input{Table: tbl, Stations: stations}, m)
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, m.Registry()); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		log.Printf("Wrote metrics to %s", metricsFile)
	}
	if n == nil {
		return runErr
	}

	if err := writeTable(output, n, table.WriteOptions{Unit: cfg.DistanceUnit, Geometry: geometry}); err != nil {
		return err
	}
	log.Printf("Wrote %s", output)
	if snapshot != "" {
		if err := network.WriteBinary(snapshot, n); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		if info, err := os.Stat(snapshot); err == nil {
			log.Printf("Wrote snapshot %s (%s)", snapshot, humanize.Bytes(uint64(info.Size())))
		}
	}

	printReport(cmd, rep)
	log.Printf("Done in %s", time.Since(start).Round(time.Millisecond))
	return runErr
}

func printReport(cmd *cobra.Command, rep *pipeline.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run       %s\n", rep.RunID)
	fmt.Fprintf(out, "reaches   %s\n", humanize.Comma(int64(rep.Reaches)))
	fmt.Fprintf(out, "branches  %s\n", humanize.Comma(int64(rep.Branches)))
	fmt.Fprintf(out, "segments  %s\n", humanize.Comma(int64(rep.Segments)))
	fmt.Fprintf(out, "outlet    %d\n", rep.Outlet)
	for _, s := range rep.Stages {
		fmt.Fprintf(out, "stage     %-12s %s\n", s.Name, s.Duration.Round(time.Microsecond))
	}
	for kind, count := range rep.Issues {
		fmt.Fprintf(out, "issue     %-18s %d\n", kind, count)
	}
}

func readReaches(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reach table: %w", err)
	}
	defer f.Close()
	tbl, err := table.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return tbl, nil
}

func readStations(path string) ([]station.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station table: %w", err)
	}
	defer f.Close()
	sts, err := table.ReadStations(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return sts, nil
}
