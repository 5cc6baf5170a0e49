// Package main provides the analyst CLI. It runs the same pipeline as the
// HTTP server and prints results to the terminal.
//
// Run with: go run ./cmd/cli analyze podcast --file episode.mp3 --mode summary
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/app"
	"github.com/fleveque/research-analyst/internal/config"
	"github.com/fleveque/research-analyst/internal/input"
	"github.com/fleveque/research-analyst/internal/logging"
	"github.com/fleveque/research-analyst/internal/model"
	"github.com/fleveque/research-analyst/internal/render"
	"github.com/fleveque/research-analyst/internal/storage"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		if kind := analysis.Kind(err); kind != "internal_error" {
			fmt.Fprintf(os.Stderr, "%s: ", kind)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	width      int
	style      string
}

// rootCmd creates the root command. Cobra builds a tree of commands:
// analyst analyze transcript --symbol AAPL --year 2024 --quarter Q2
// analyst team "What drove NVDA's margin expansion?"
// analyst stats
func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "analyst",
		Short:         "Financial research analyst",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("ANALYST_CONFIG_PATH"), "Path to a YAML config file")
	root.PersistentFlags().IntVar(&opts.width, "width", 100, "Word wrap width for terminal output")
	root.PersistentFlags().StringVar(&opts.style, "style", "", "Glamour style: dark, light or notty (default: notty unless stdout is a terminal)")

	root.AddCommand(analyzeCmd(opts), teamCmd(opts), statsCmd(opts), callsCmd(opts))
	return root
}

type analyzeOptions struct {
	file       string
	mimeType   string
	url        string
	symbol     string
	year       string
	quarter    string
	period     string
	interval   string
	indicators string
	mode       string
}

func analyzeCmd(global *globalOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:       "analyze <task>",
		Short:     "Analyze a transcript, podcast, video, image or chart",
		Args:      cobra.ExactArgs(1),
		ValidArgs: taskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := opts.rawInput()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), global, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.Analyze(ctx, args[0], opts.mode, raw)
				if err != nil {
					return err
				}
				return printResult(cmd, global, result)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.file, "file", "", "Local audio, image or chart file to upload")
	f.StringVar(&opts.mimeType, "mime-type", "", "Declared MIME type of --file (detected when empty)")
	f.StringVar(&opts.url, "url", "", "YouTube URL for video analysis")
	f.StringVar(&opts.symbol, "symbol", "", "Ticker symbol for transcripts and charts")
	f.StringVar(&opts.year, "year", "", "Fiscal year of the earnings call")
	f.StringVar(&opts.quarter, "quarter", "", "Quarter of the earnings call: Q1-Q4")
	f.StringVar(&opts.period, "period", "", "Chart period: "+strings.Join(input.Periods, ", "))
	f.StringVar(&opts.interval, "interval", "", "Chart bar interval: "+strings.Join(input.Intervals, ", "))
	f.StringVar(&opts.indicators, "indicators", "", "Comma-separated chart indicators")
	f.StringVar(&opts.mode, "mode", string(model.ModeSummary), "Output mode: summary or companies")
	return cmd
}

// rawInput collects flags into the same shape the HTTP form produces.
func (o *analyzeOptions) rawInput() (input.RawInput, error) {
	raw := input.RawInput{
		URL:      o.url,
		Symbol:   o.symbol,
		MIMEType: o.mimeType,
		Metadata: map[string]string{},
	}
	for k, v := range map[string]string{
		model.MetaYear:       o.year,
		model.MetaQuarter:    o.quarter,
		model.MetaPeriod:     o.period,
		model.MetaInterval:   o.interval,
		model.MetaIndicators: o.indicators,
	} {
		if v != "" {
			raw.Metadata[k] = v
		}
	}

	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return raw, fmt.Errorf("reading %s: %w", o.file, err)
		}
		raw.Data = data
		raw.Filename = o.file
	}
	return raw, nil
}

func teamCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "team <query>",
		Short: "Ask the configured analyst team",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), global, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.RunTeam(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printResult(cmd, global, result)
			})
		},
	}
}

func statsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show model call and token totals from the call log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := app.OpenDatabase(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			calls := storage.NewCallRepository(db)
			stats, err := calls.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}
			byTask, err := calls.CountByTask(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Calls: %d (succeeded %d, failed %d)\n", stats.Total, stats.Succeeded, stats.Failed)
			fmt.Fprintf(out, "Tokens: input %d, output %d, total %d\n", stats.InputTokens, stats.OutputTokens, stats.TotalTokens)
			for _, tc := range byTask {
				fmt.Fprintf(out, "  %-12s %d\n", tc.Task, tc.Count)
			}
			return nil
		},
	}
}

func callsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "calls <request-id>",
		Short: "Print the recorded calls for one request as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := app.OpenDatabase(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			calls, err := storage.NewCallRepository(db).ListByRequestID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(calls)
		},
	}
}

// withApp loads config, builds the app and runs fn with a context that is
// cancelled on Ctrl+C.
func withApp(parent context.Context, global *globalOptions, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr so stdout carries only the result.
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printResult(cmd *cobra.Command, global *globalOptions, result *model.DisplayResult) error {
	style := global.style
	if style == "" {
		style = "notty"
		if isatty.IsTerminal(os.Stdout.Fd()) {
			style = "dark"
		}
	}

	text, err := render.Terminal(*result, global.width, style)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	if result.RequestID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Request ID: %s (see: analyst calls %s)\n", result.RequestID, result.RequestID)
	}
	return nil
}

func taskNames() []string {
	names := make([]string, 0, len(model.AllTaskTypes))
	for _, t := range model.AllTaskTypes {
		names = append(names, string(t))
	}
	return names
}
