package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/event-pipeline/internal/bus"
)

func newTailCmd(opts *rootOptions) *cobra.Command {
	var (
		natsURL    string
		subject    string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow batches as the collector stores them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := bus.NewNATSSubscriber(natsURL)
			if err != nil {
				return err
			}
			defer sub.Close()

			ch, cancel, err := sub.Subscribe(subject)
			if err != nil {
				return err
			}
			defer cancel()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case data, ok := <-ch:
					if !ok {
						return nil
					}
					if jsonOutput {
						fmt.Fprintln(out, string(data))
						continue
					}
					batch, err := bus.DecodeBatch(data)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "skipping message: %v\n", err)
						continue
					}
					printBatch(out, batch)
				}
			}
		},
	}
	defaultURL := os.Getenv("NATS_URL")
	if defaultURL == "" {
		defaultURL = "nats://127.0.0.1:4222"
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", defaultURL, "NATS server URL")
	cmd.Flags().StringVar(&subject, "subject", bus.DefaultSubject, "subject to follow (wildcards allowed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print raw JSON messages")
	return cmd
}

func printBatch(w io.Writer, b bus.IngestedBatch) {
	for _, ev := range b.Events {
		props, _ := json.Marshal(ev.Properties)
		fmt.Fprintf(w, "%s %s %s id=%s user=%s %s\n", b.TenantID, formatMillis(ev.Timestamp), ev.Name, ev.ID, ev.UserID, props)
	}
	if b.Duplicates > 0 {
		fmt.Fprintf(w, "%s (%d redelivered events ignored)\n", b.TenantID, b.Duplicates)
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
