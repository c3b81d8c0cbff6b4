package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/PratikDhanave/event-pipeline/analytics"
)

func newFloodCmd(opts *rootOptions) *cobra.Command {
	var (
		count int
		name  string
	)
	cmd := &cobra.Command{
		Use:   "flood",
		Short: "Track many events through a batching client, then close it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			cfg, err := opts.clientConfig(cmd)
			if err != nil {
				return err
			}

			client, err := analytics.NewClient(cfg)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			if err := client.RegisterMetrics(reg); err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				client.Track(name, map[string]any{"seq": i}, "")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			closeErr := client.Close(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tracked %d %s events, %d undelivered\n", count, name, client.Pending())
			if err := printDeliveryMetrics(out, reg); err != nil {
				return err
			}
			return closeErr
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 100, "number of events to track")
	cmd.Flags().StringVar(&name, "name", "flood", "event name")
	return cmd
}

func printDeliveryMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil {
				continue
			}
			label := mf.GetName()
			if pairs := m.GetLabel(); len(pairs) > 0 {
				parts := make([]string, 0, len(pairs))
				for _, lp := range pairs {
					parts = append(parts, lp.GetName()+"="+lp.GetValue())
				}
				label += "{" + strings.Join(parts, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("  %s %g", label, c.GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
