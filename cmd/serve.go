package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/live"
	"github.com/ziadkadry99/examrender/internal/server"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interactive rendering server",
	Long:  `Serves images, the render endpoint and the live mount websocket used by interactive previews.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetInt("port"); v > 0 {
			cfg.Server.Port = v
		}
		if v, _ := cmd.Flags().GetString("images"); v != "" {
			cfg.ImagesDir = v
		}
		if v, _ := cmd.Flags().GetString("base-url"); v != "" {
			cfg.BaseURL = v
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger := slog.Default()
		loader := texmath.DefaultLoader(texmath.WithLogger(logger))
		renderer := live.NewRenderer(loader, assets.NewRemote(cfg.BaseURL), logger)

		srv := server.New(server.Config{
			Port:      cfg.Server.Port,
			ImagesDir: cfg.ImagesDir,
			AllowAll:  cfg.Server.AllowAllOrigins,
		}, renderer, logger)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		// Warm the math engine so the first preview does not wait for it.
		go loader.Get(ctx)

		logger.Info("examrender server starting", "version", Version, "port", cfg.Server.Port, "base_url", cfg.BaseURL)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().String("images", "", "images directory (overrides config)")
	serveCmd.Flags().String("base-url", "", "public base URL for image links (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
