package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/event-pipeline/analytics"
	"github.com/PratikDhanave/event-pipeline/internal/logging"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	endpoint   string
	apiKey     string
	debug      bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "eventctl",
		Short:         "Send, inspect and follow pipeline events",
		SilenceUsage:  true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", os.Getenv("EVENTCTL_CONFIG"), "client config file (TOML)")
	pf.StringVar(&opts.endpoint, "endpoint", "", "collector /analytics URL (overrides config and EVENTS_ENDPOINT)")
	pf.StringVar(&opts.apiKey, "api-key", "", "API key (overrides config and EVENTS_API_KEY)")
	pf.BoolVar(&opts.debug, "debug", false, "log delivery diagnostics to stderr")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "deadline for network calls")

	cmd.AddCommand(newSendCmd(opts))
	cmd.AddCommand(newFloodCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newTailCmd(opts))
	cmd.AddCommand(newLogCmd(opts))
	return cmd
}

// clientConfig layers flags over the config file. The analytics package
// then applies the environment and defaults beneath both.
func (o *rootOptions) clientConfig(cmd *cobra.Command) (analytics.Config, error) {
	cfg := analytics.Config{}
	if o.configPath != "" {
		fromFile, err := analytics.LoadConfigFile(o.configPath)
		if err != nil {
			return analytics.Config{}, err
		}
		cfg = fromFile
	}

	flags := analytics.Config{Endpoint: o.endpoint, APIKey: o.apiKey}
	if cmd.Flags().Changed("debug") {
		flags.Debug = analytics.Bool(o.debug)
		if o.debug {
			flags.Logger = logging.New(cmd.ErrOrStderr(), true)
		}
	}
	return cfg.Merge(flags), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
