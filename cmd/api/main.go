package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/app"
	"github.com/markdave123-py/docsift/internal/config"
	"github.com/markdave123-py/docsift/internal/logging"
	"github.com/markdave123-py/docsift/internal/services"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           app.Name,
		Short:         "document ingestion and retrieval service",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), parseCmd(), ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config and the logger shared by every subcommand.
func setup() (*config.Config, *zap.Logger, error) {
	cfg := config.LoadConfig()
	logger, err := logging.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("warning", w))
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			// Handle SIGINT/SIGTERM for graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			application, err := app.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("startup failed: %w", err)
			}
			defer application.Close()

			srv := app.NewServer(application, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func parseCmd() *cobra.Command {
	var size, overlap int
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "extract a file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var sizeOpt, overlapOpt *int
			if cmd.Flags().Changed("chunk-size") {
				sizeOpt = &size
			}
			if cmd.Flags().Changed("chunk-overlap") {
				overlapOpt = &overlap
			}

			res := app.NewParser(cfg).Parse(cmd.Context(), data, filepath.Base(args[0]), sizeOpt, overlapOpt)
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().IntVar(&size, "chunk-size", 0, "override the configured chunk size")
	cmd.Flags().IntVar(&overlap, "chunk-overlap", 0, "override the configured chunk overlap")
	return cmd
}

func ingestCmd() *cobra.Command {
	var investigation, uploadedBy string
	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "ingest every supported file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if investigation != "" {
				if _, err := uuid.Parse(investigation); err != nil {
					return fmt.Errorf("--investigation must be a UUID: %w", err)
				}
			}
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			application, err := app.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("startup failed: %w", err)
			}
			defer application.Close()

			paths, err := collectFiles(args[0], application.Parser.IsSupported)
			if err != nil {
				return err
			}
			logger.Info("ingesting directory", zap.String("dir", args[0]), zap.Int("files", len(paths)))

			summary := application.Ingest.IngestPaths(ctx, paths, services.UploadOptions{
				InvestigationID: investigation,
				UploadedBy:      uploadedBy,
			})
			if err := printJSON(cmd, summary); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&investigation, "investigation", "", "investigation UUID to attach documents to")
	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", "cli", "uploader recorded on each document")
	return cmd
}

// collectFiles walks dir and returns supported regular files, skipping
// hidden entries.
func collectFiles(dir string, supported func(string) bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && supported(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no supported files found")
	}
	return paths, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
