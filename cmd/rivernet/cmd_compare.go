package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"rivernet/pkg/network"
	"rivernet/pkg/power"
	"rivernet/pkg/table"
)

var compareCmd = &cobra.Command{
	Use:   "compare --a <a.bin> --b <b.bin> --field <name>",
	Short: "Compare a field between two scenario snapshots",
	Long: `compare matches reaches by ID and writes <field>_DIFF (a - b) and
<field>_RATIO (a / b) onto scenario a. The result is written as a reach table,
and optionally as a new snapshot.`,
	RunE: runCompare,
}

func init() {
	f := compareCmd.Flags()
	f.String("a", "", "Snapshot of the scenario to annotate")
	f.String("b", "", "Snapshot of the baseline scenario")
	f.String("field", "", "Field to compare")
	f.String("output", "", "Output reach table (stdout when empty)")
	f.String("snapshot", "", "Optional snapshot of the annotated scenario")
	compareCmd.MarkFlagRequired("a")
	compareCmd.MarkFlagRequired("b")
	compareCmd.MarkFlagRequired("field")
}

func runCompare(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	pathA, _ := flags.GetString("a")
	pathB, _ := flags.GetString("b")
	field, _ := flags.GetString("field")
	output, _ := flags.GetString("output")
	snapshot, _ := flags.GetString("snapshot")

	a, err := network.ReadBinary(pathA)
	if err != nil {
		return fmt.Errorf("load scenario a: %w", err)
	}
	b, err := network.ReadBinary(pathB)
	if err != nil {
		return fmt.Errorf("load scenario b: %w", err)
	}

	matched, err := power.Compare(a, b, field)
	if err != nil {
		return err
	}
	log.Printf("Compared %s on %d of %d reaches", field, matched, a.Len())

	if output != "" {
		if err := writeTable(output, a, table.WriteOptions{}); err != nil {
			return err
		}
	} else if err := table.Write(cmd.OutOrStdout(), a, table.WriteOptions{}); err != nil {
		return err
	}

	if snapshot != "" {
		if err := network.WriteBinary(snapshot, a); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	return nil
}
