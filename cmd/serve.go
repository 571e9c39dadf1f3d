package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/gallery/internal/blobstore"
	"github.com/lehigh-university-libraries/gallery/internal/config"
	"github.com/lehigh-university-libraries/gallery/internal/handlers"
	"github.com/lehigh-university-libraries/gallery/internal/images"
	"github.com/lehigh-university-libraries/gallery/internal/notification"
	"github.com/lehigh-university-libraries/gallery/internal/observability"
	"github.com/lehigh-university-libraries/gallery/internal/storage"
)

const imagePrefix = "images"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the image service",
		Long: `Starts the image service: upload, list, fetch and delete images over
HTTP, with a server-sent event stream announcing every addition and removal.

Image bytes live in a blob bucket (the local data directory by default) and
metadata in a badger database.`,
		Example: `  # Start server on default address :8080
  gallery serve

  # Keep images in memory only
  GALLERY_BUCKET_URL=mem:// gallery serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			blobs, err := openBlobStore(ctx, cfg.Server)
			if err != nil {
				return err
			}
			defer blobs.Close()

			metadata, err := storage.OpenBadgerMetadata(cfg.Server.MetadataPath())
			if err != nil {
				return err
			}
			defer metadata.Close()

			hub := notification.NewHub(notification.DefaultBuffer)
			service := images.NewService(storage.NewImageStore(), metadata, blobs, hub)
			if _, err := service.LoadExisting(ctx); err != nil {
				return err
			}

			observability.RegisterMetrics()
			handler := handlers.New(service, hub,
				handlers.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
				handlers.WithKeepAlive(cfg.Server.KeepAlive),
			)
			mux := handler.Routes()
			mux.Handle("/metrics", promhttp.Handler())

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           handlers.WithCORS(cfg.Server.CORSOrigins, mux),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Gallery service available", "addr", cfg.Server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-ctx.Done():
				slog.Info("Shutting down server...")
				// stream handlers only return once their subscription ends
				hub.Close()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				hub.Close()
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default :8080)")

	return cmd
}

func openBlobStore(ctx context.Context, cfg config.ServerConfig) (*blobstore.Store, error) {
	if cfg.BucketURL != "" {
		store, err := blobstore.Open(ctx, cfg.BucketURL, imagePrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open image bucket: %w", err)
		}
		return store, nil
	}
	store, err := blobstore.NewFile(ctx, cfg.DataDir, imagePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to open image directory: %w", err)
	}
	return store, nil
}
