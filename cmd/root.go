package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "media-dedup",
	Short: "Detect duplicate images and videos against a growing corpus",
	Long: `media-dedup fingerprints images and sampled video frames with perceptual
hashes and visual embeddings, and compares every new item against all
previously ingested items to decide whether it is a duplicate.

Every ingested item is appended to the corpus, so later uploads can match it.`,
	SilenceUsage: true,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	logger = newLogger(logLevel)
	slog.SetDefault(logger)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: "15:04:05",
	}))
}
