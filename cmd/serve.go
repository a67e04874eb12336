package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/media-dedup/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the media-dedup HTTP API.

Endpoints:
  POST /api/v1/ingest   multipart "file" (and optional "name"), stores the item
  POST /api/v1/check    same input, reports the best match without storing
  GET  /api/v1/corpus   corpus entries, paginated with offset and limit
  GET  /health          liveness`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from SERVER_PORT or 8085)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from SERVER_HOST)")
	addMatchFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Server.Host = host
	}

	server := web.NewServer(&a.cfg.Server, a.pipeline, a.backend.Corpus, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
