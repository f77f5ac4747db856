package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/platescan/internal/config"
	"github.com/MeKo-Tech/platescan/internal/onnx"
	"github.com/MeKo-Tech/platescan/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and detection API",
	Long: `Start an HTTP server with the upload page and the detection API.

The server provides the following endpoints:
  GET  /           - Upload page
  POST /api/detect - Detect plates in an uploaded image or video
  GET  /ws         - WebSocket detection with progress
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  platescan serve
  platescan serve --port 8080
  platescan serve --host 0.0.0.0 --port 3000`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		applyServeFlags(cmd, &cfg.Server)
		if err := applyPipelineFlags(cmd, &cfg); err != nil {
			return err
		}

		p, err := buildPipeline(&cfg)
		if err != nil {
			return err
		}
		if cfg.Server.SweepOnStart {
			sweepTemp(cfg.Video.TempDir)
		}

		srvCfg := server.Config{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			CORSOrigin:  cfg.Server.CORSOrigin,
			MaxUploadMB: int64(cfg.Server.MaxUploadMB),
			TimeoutSec:  cfg.Server.TimeoutSec,
		}
		plateServer := server.NewServer(srvCfg, p)

		// Jobs observe this context; it is cancelled once graceful shutdown times out.
		jobCtx, cancelJobs := context.WithCancel(context.Background())
		defer cancelJobs()

		httpServer := plateServer.HTTPServer(srvCfg)
		httpServer.BaseContext = func(net.Listener) context.Context { return jobCtx }

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Starting platescan server", "host", srvCfg.Host, "port", srvCfg.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		var serveErr error
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal")
		case serveErr = <-errCh:
			slog.Error("Server error", "error", serveErr)
		}

		shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdown)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdown)
		defer shutdownCancel()
		stopJobs := context.AfterFunc(shutdownCtx, cancelJobs)
		defer stopJobs()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			cancelJobs()
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		if err := plateServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}
		if err := onnx.DestroyEnvironment(); err != nil {
			slog.Warn("Failed to release ONNX Runtime", "error", err)
		}
		sweepTemp(cfg.Video.TempDir)

		slog.Info("Graceful shutdown completed")
		if serveErr != nil {
			return fmt.Errorf("server failed: %w", serveErr)
		}
		return nil
	},
}

// applyServeFlags copies explicitly set server flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.ServerConfig) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		cfg.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-upload-size") {
		cfg.MaxUploadMB, _ = flags.GetInt("max-upload-size")
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}
	if flags.Changed("sweep-on-start") {
		cfg.SweepOnStart, _ = flags.GetBool("sweep-on-start")
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 200, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request read timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("sweep-on-start", true, "remove leftover temp videos before serving")
	addPipelineFlags(serveCmd)
}
