package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/zonemap/internal/chunk"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Print the request cells for a view",
	Long:  "Prints the cells a refresh cycle would request for the given bounds, with each cell's centre and zoom level.",
	RunE:  runGrid,
}

func init() {
	gridCmd.Flags().IntP("n", "n", 0, "cells per axis (default from config)")
	gridCmd.Flags().Float64("top", 0, "north edge latitude")
	gridCmd.Flags().Float64("left", 0, "west edge longitude")
	gridCmd.Flags().Float64("bottom", 0, "south edge latitude")
	gridCmd.Flags().Float64("right", 0, "east edge longitude")
	gridCmd.Flags().String("policy", "", "chunk policy: grid or single")
	rootCmd.AddCommand(gridCmd)
}

func runGrid(cmd *cobra.Command, _ []string) error {
	applyViewFlags(cmd)
	if n, _ := cmd.Flags().GetInt("n"); n > 0 {
		cfg.Chunk.GridSize = n
	}
	if err := cfg.Validate("grid"); err != nil {
		return err
	}

	bounds := viewBounds(cfg.Viewport)
	if err := bounds.Validate(); err != nil {
		return err
	}
	policy, err := chunk.ParsePolicy(cfg.Chunk.Policy)
	if err != nil {
		return err
	}
	orch := chunk.NewOrchestrator(nil, chunk.Config{Policy: policy, GridSize: cfg.Chunk.GridSize}, nil, nil)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tCOL\tTOP\tLEFT\tBOTTOM\tRIGHT\tCENTER\tZOOM")
	for _, c := range orch.Plan(bounds) {
		center := c.Bounds.Center()
		fmt.Fprintf(w, "%d\t%d\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f,%.6f\t%d\n",
			c.Row, c.Col,
			c.Bounds.TopLeft.Lat, c.Bounds.TopLeft.Lon,
			c.Bounds.BottomRight.Lat, c.Bounds.BottomRight.Lon,
			center.Lat, center.Lon,
			c.Bounds.ZoomLevel(),
		)
	}
	return w.Flush()
}
