package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/event-pipeline/analytics"
	"github.com/PratikDhanave/event-pipeline/internal/models"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to   string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "stats <event-name>",
		Short: "Count stored events in a time window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.clientConfig(cmd)
			if err != nil {
				return err
			}
			endpoint, apiKey := cfg.Endpoint, cfg.APIKey
			if endpoint == "" {
				endpoint = os.Getenv(analytics.EnvEndpoint)
			}
			if endpoint == "" {
				endpoint = analytics.DefaultEndpoint
			}
			if apiKey == "" {
				apiKey = os.Getenv(analytics.EnvAPIKey)
			}

			now := time.Now().UTC()
			if to == "" {
				to = now.Format(time.RFC3339)
			}
			if from == "" {
				from = now.Add(-24 * time.Hour).Format(time.RFC3339)
			}

			target, err := statsURL(endpoint, args[0], from, to)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			resp, err := fetchStats(ctx, target, apiKey)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintf(out, "%s: %d (%s to %s)\n", resp.EventName, resp.Count, from, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start, RFC3339 (default 24h ago)")
	cmd.Flags().StringVar(&to, "to", "", "window end, RFC3339, exclusive (default now)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// siblingURL swaps the last path segment of the /analytics endpoint for route.
func siblingURL(endpoint, route string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	u.Path = path.Join(path.Dir(strings.TrimSuffix(u.Path, "/")), route)
	return u, nil
}

// statsURL derives the /stats URL from the /analytics endpoint.
func statsURL(endpoint, eventName, from, to string) (string, error) {
	u, err := siblingURL(endpoint, "stats")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("event_name", eventName)
	q.Set("from", from)
	q.Set("to", to)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fetchStats(ctx context.Context, target, apiKey string) (models.EventCountResponse, error) {
	var out models.EventCountResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return out, fmt.Errorf("building request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("querying stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return out, fmt.Errorf("collector responded %s: %s", resp.Status, apiErr.Error)
		}
		return out, &analytics.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding stats: %w", err)
	}
	return out, nil
}
