package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"rivernet/pkg/network"
	"rivernet/pkg/station"
)

var snapCmd = &cobra.Command{
	Use:   "snap --snapshot <network.bin> --x <x> --y <y>",
	Short: "Find the reach nearest to a point",
	RunE:  runSnap,
}

func init() {
	f := snapCmd.Flags()
	f.String("snapshot", "network.bin", "Binary network snapshot")
	f.Float64("x", 0, "X coordinate (longitude for geographic networks)")
	f.Float64("y", 0, "Y coordinate (latitude for geographic networks)")
	f.Float64("max-dist", station.DefaultMaxSnapDistance, "Maximum snap distance")
	f.Bool("geographic", false, "Coordinates are lon/lat degrees")
	snapCmd.MarkFlagRequired("x")
	snapCmd.MarkFlagRequired("y")
}

func runSnap(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("snapshot")
	x, _ := flags.GetFloat64("x")
	y, _ := flags.GetFloat64("y")
	maxDist, _ := flags.GetFloat64("max-dist")
	geographic, _ := flags.GetBool("geographic")

	n, err := network.ReadBinary(path)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	res, err := station.NewSnapper(n, maxDist, geographic).Snap(orb.Point{x, y})
	if err != nil {
		return err
	}
	r := &n.Reaches[res.Index]
	fmt.Fprintf(cmd.OutOrStdout(), "reach %d segment %d ratio %.3f distance %.2f branch %d\n",
		res.ReachID, res.Segment, res.Ratio, res.Dist, r.BranchID)
	return nil
}
