package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/config"
	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/aimerfeng/ReviewLink/internal/reviewlist"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		apiURL   string
		interval time.Duration
		timeout  time.Duration
		plain    bool
		logFile  string
	)

	cmd := &cobra.Command{
		Use:   "viewer",
		Short: "Live table of WhatsApp product reviews",
		Long: `Live table of WhatsApp product reviews.

Fetches the review list once on start and again every interval, replacing
the table with the latest snapshot. Fetch failures are written to the log
and the previous snapshot stays on screen.

  viewer                                # interactive table
  viewer --plain                        # reprint the table to stdout
  viewer --url http://host:8080/api/reviews --interval 10s`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("url") {
				apiURL = cfg.Viewer.APIURL
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Viewer.PollInterval
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Viewer.RequestTimeout
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			// The terminal belongs to the table; logs go to a file
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}
			logging.SetupTo(&cfg.Logging, cfg.Server.Env, logOut)

			logger := logging.NewLogger("reviewlist")
			opts := reviewlist.Options{
				Interval: interval,
				Timeout:  timeout,
				Logger:   &logger,
			}
			fetcher := reviewlist.NewHTTPFetcher(apiURL, timeout)

			if plain {
				return runPlain(cmd.Context(), fetcher, opts, cmd.OutOrStdout())
			}

			p := tea.NewProgram(reviewlist.NewModel(fetcher, opts), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "url", "", "reviews endpoint (default: $REVIEWS_API_URL)")
	cmd.Flags().DurationVar(&interval, "interval", reviewlist.DefaultInterval, "refresh interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the table to stdout instead of the interactive view")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file")

	return cmd
}

// runPlain reprints the table after every settled fetch until interrupted
func runPlain(ctx context.Context, fetcher reviewlist.Fetcher, opts reviewlist.Options, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := reviewlist.NewPoller(fetcher, opts, func(s reviewlist.State) {
		fmt.Fprintf(out, "%s\n%s\n\n", reviewlist.Title, reviewlist.Render(s, time.Local))
	})
	if err := p.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	p.Stop()
	return nil
}
