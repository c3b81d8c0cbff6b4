package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/event-pipeline/analytics"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		propPairs []string
		userID    string
	)
	cmd := &cobra.Command{
		Use:   "send <event-name>",
		Short: "Send one event immediately and report whether the collector stored it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(propPairs)
			if err != nil {
				return err
			}
			cfg, err := opts.clientConfig(cmd)
			if err != nil {
				return err
			}
			srv, err := analytics.NewServer(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			if err := srv.Track(ctx, args[0], props, userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&propPairs, "prop", "p", nil, "event property key=value (repeatable)")
	cmd.Flags().StringVar(&userID, "user", "", "user ID to attach")
	return cmd
}
