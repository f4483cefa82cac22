package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-dash/dashdemux/internal/config"
	"github.com/go-dash/dashdemux/internal/dash"
	"github.com/go-dash/dashdemux/internal/fetch"
	"github.com/go-dash/dashdemux/pkg/httpclient"
)

var probeCmd = &cobra.Command{
	Use:   "probe <mpd-url>",
	Short: "Parse an MPD and print its Representations",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	mc, err := dash.Parse(ctx, client, args[0], 0, 0)
	if err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	fmt.Printf("Presentation: live=%v baseURL=%s\n", mc.IsLive, mc.BaseURL)
	printReps := func(kind string, reps []*dash.Representation) {
		for _, r := range reps {
			fmt.Printf("  [%s] id=%s codecs=%s bandwidth=%d first=%d last=%d cur=%d\n",
				kind, r.ID, r.Codecs, r.Bandwidth, r.FirstSeqNo, r.LastSeqNo, r.CurSeqNo)
		}
	}
	printReps("video", mc.Videos)
	printReps("audio", mc.Audios)
	printReps("subtitle", mc.Subtitles)
	return nil
}

// newClient builds the fetch.Client implied by cfg: always an HTTP client
// backed by the resilient httpclient.Client for http(s):// URLs. No file
// client is built, so file:// manifest and segment URLs are not served by
// the client returned here.
func newClient(cfg *config.Config) (fetch.Client, error) {
	httpCfg := httpclient.Config{
		Timeout:             cfg.HTTPClient.Timeout,
		RetryAttempts:       cfg.HTTPClient.RetryAttempts,
		RetryDelay:          cfg.HTTPClient.RetryDelay,
		RetryMaxDelay:       cfg.HTTPClient.RetryMaxDelay,
		BackoffMultiplier:   httpclient.DefaultBackoffMultiplier,
		CircuitThreshold:    cfg.HTTPClient.CircuitThreshold,
		CircuitTimeout:      cfg.HTTPClient.CircuitTimeout,
		CircuitHalfOpenMax:  httpclient.DefaultCircuitHalfOpenMax,
		UserAgent:           cfg.HTTPClient.UserAgent,
		EnableDecompression: cfg.HTTPClient.EnableDecompression,
	}
	return fetch.NewHTTPClient(httpCfg, fetch.Options{UserAgent: cfg.HTTPClient.UserAgent}), nil
}
