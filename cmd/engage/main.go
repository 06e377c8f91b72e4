package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/postpulse/engage/internal/app"
	"github.com/postpulse/engage/internal/config"
	"github.com/postpulse/engage/internal/domain"
)

const (
	appName = "engage"
	version = "v1.4.0"
)

var configPath string

func main() {
	// .env is optional; real deployments use actual environment variables.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Engagement prediction and optimal-timing engine",
		Version: version,
		Long: `engage predicts engagement for candidate social content, ranks future
publishing slots from posting history and external signals, and tracks
prediction accuracy as outcomes come in.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to yaml config file")
	rootCmd.PersistentFlags().String("log-level", "", "override configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(serveCmd(), predictCmd(), timingCmd(), accuracyCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and maintenance scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Flags())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Scheduler.Start(); err != nil {
				return err
			}
			defer rt.Scheduler.Stop()

			errCh := make(chan error, 1)
			go func() { errCh <- rt.Server.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return rt.Server.Shutdown(ctx)
		},
	}
}

func predictCmd() *cobra.Command {
	var (
		userID   string
		text     string
		hashtags []string
		hour     int
		day      int
		format   string
		useAI    bool
		aiOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a one-shot engagement prediction",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Flags())
			if err != nil {
				return err
			}
			defer rt.Close()

			pred, err := rt.Engine.Predict(cmd.Context(), app.PredictRequest{
				UserID: userID,
				Features: domain.EngagementFeatures{
					Text:      text,
					Hashtags:  hashtags,
					Hour:      hour,
					DayOfWeek: day,
					Format:    format,
				},
				UseAI:  useAI,
				AIOnly: aiOnly,
			})
			if err != nil {
				return err
			}
			return printJSON(pred)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&text, "text", "", "candidate content text")
	cmd.Flags().StringSliceVar(&hashtags, "hashtags", nil, "comma-separated hashtags")
	cmd.Flags().IntVar(&hour, "hour", 9, "target posting hour (0-23)")
	cmd.Flags().IntVar(&day, "day", 2, "target day of week (0=Sunday)")
	cmd.Flags().StringVar(&format, "format", "text", "format tag")
	cmd.Flags().BoolVar(&useAI, "ai", false, "include the AI estimate")
	cmd.Flags().BoolVar(&aiOnly, "ai-only", false, "report the AI estimate instead of blending")
	cmd.MarkFlagRequired("user")
	return cmd
}

func timingCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "timing",
		Short: "Rank upcoming publishing slots for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Flags())
			if err != nil {
				return err
			}
			defer rt.Close()

			slots, err := rt.Engine.RecommendTiming(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(slots)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func accuracyCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Show running prediction accuracy for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Flags())
			if err != nil {
				return err
			}
			defer rt.Close()

			summary, err := rt.Engine.AccuracySummary(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := flags.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	applyLogLevel(cfg.LogLevel)
	return cfg, nil
}

func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
