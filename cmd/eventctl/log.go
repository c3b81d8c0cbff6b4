package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/event-pipeline/analytics"
	"github.com/PratikDhanave/event-pipeline/internal/logging"
	"github.com/PratikDhanave/event-pipeline/internal/models"
)

func newLogCmd(opts *rootOptions) *cobra.Command {
	var (
		level   string
		service string
		meta    []string
		async   bool
	)
	cmd := &cobra.Command{
		Use:   "log <message>",
		Short: "Ship a structured log record to the collector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logging.ParseLevel(level)
			if err != nil {
				return err
			}
			attrs, err := parseProps(meta)
			if err != nil {
				return err
			}
			cfg, err := opts.clientConfig(cmd)
			if err != nil {
				return err
			}
			endpoint := cfg.Endpoint
			if endpoint == "" {
				endpoint = os.Getenv(analytics.EnvEndpoint)
			}
			if endpoint == "" {
				endpoint = analytics.DefaultEndpoint
			}
			target, err := siblingURL(endpoint, "observability")
			if err != nil {
				return err
			}

			var (
				mu      sync.Mutex
				shipErr error
			)
			post := logging.HTTPOutput(target.String(), service, nil)
			mode := logging.ModeSync
			if async {
				mode = logging.ModeAsync
			}
			sh := logging.NewShipper(logging.ShipperConfig{
				Service:  service,
				MinLevel: lvl,
				Mode:     mode,
				Output: func(ctx context.Context, rec models.StructuredLog) error {
					err := post(ctx, rec)
					if err != nil {
						mu.Lock()
						shipErr = errors.Join(shipErr, err)
						mu.Unlock()
					}
					return err
				},
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			kv := make([]any, 0, 2*len(attrs))
			for k, v := range attrs {
				kv = append(kv, k, v)
			}
			slog.New(sh).Log(ctx, lvl, args[0], kv...)
			if err := sh.Close(ctx); err != nil {
				return fmt.Errorf("draining log shipper: %w", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if shipErr != nil {
				return shipErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shipped %s record to %s\n", level, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "info", "record level: debug, info, warn or error")
	cmd.Flags().StringVar(&service, "service", "eventctl", "service name sent in the Service-Name header")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata as key=value, repeatable")
	cmd.Flags().BoolVar(&async, "async", false, "ship through the background queue")
	return cmd
}
