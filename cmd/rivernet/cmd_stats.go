package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rivernet/pkg/network"
	"rivernet/pkg/segment"
)

var statsCmd = &cobra.Command{
	Use:   "stats --snapshot <network.bin>",
	Short: "Summarize a processed network snapshot",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().String("snapshot", "network.bin", "Binary network snapshot")
}

func runStats(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("snapshot")
	n, err := network.ReadBinary(path)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var total float64
	for _, r := range n.Reaches {
		if !network.IsNull(r.Length) {
			total += r.Length
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run       %s\n", n.RunID)
	fmt.Fprintf(out, "reaches   %s\n", humanize.Comma(int64(n.Len())))
	fmt.Fprintf(out, "branches  %s\n", humanize.Comma(int64(len(n.Branches()))))
	fmt.Fprintf(out, "segments  %s\n", humanize.Comma(int64(len(segment.Segments(n)))))
	fmt.Fprintf(out, "sinks     %d\n", len(network.Sinks(n)))
	fmt.Fprintf(out, "length    %s\n", humanize.CommafWithDigits(total, 1))
	if n.Outlet >= 0 {
		fmt.Fprintf(out, "outlet    %d\n", n.Reaches[n.Outlet].ID)
	}
	for _, name := range n.FieldNames() {
		col, nulls := n.Fields[name], 0
		for _, v := range col {
			if network.IsNull(v) {
				nulls++
			}
		}
		fmt.Fprintf(out, "field     %-24s %s null\n", name, humanize.Comma(int64(nulls)))
	}
	return nil
}
