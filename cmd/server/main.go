package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rivernet/pkg/api"
	"rivernet/pkg/network"
	"rivernet/pkg/station"
)

func main() {
	snapshotPath := flag.String("snapshot", "network.bin", "Path to processed network snapshot")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	maxSnap := flag.Float64("max-snap", station.DefaultMaxSnapDistance, "Maximum snap distance")
	geographic := flag.Bool("geographic", false, "Reach coordinates are lon/lat degrees")
	flag.Parse()

	start := time.Now()

	// Load network.
	log.Printf("Loading network from %s...", *snapshotPath)
	n, err := network.ReadBinary(*snapshotPath)
	if err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}
	log.Printf("Loaded: %d reaches, %d attribute columns, run %s", n.Len(), len(n.Fields), n.RunID)

	log.Println("Building R-tree spatial index...")
	snapper := station.NewSnapper(n, *maxSnap, *geographic)

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Setup HTTP server.
	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.CORSOrigin = *corsOrigin
	cfg.Registry = reg

	handlers := api.NewHandlers(n, snapper)
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
