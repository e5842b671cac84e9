// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/arrwarden/internal/arr"
	"github.com/autobrr/arrwarden/internal/buildinfo"
	"github.com/autobrr/arrwarden/internal/config"
	"github.com/autobrr/arrwarden/internal/domain"
	"github.com/autobrr/arrwarden/internal/metrics"
	"github.com/autobrr/arrwarden/internal/models"
	"github.com/autobrr/arrwarden/internal/services/monitor"
	"github.com/autobrr/arrwarden/internal/services/prowlarr"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "arrwarden",
		Short: "Download queue watchdog for Radarr and Sonarr",
		Long: `arrwarden - polls the download queue of one or more Radarr/Sonarr
instances and removes, blocklists or replaces downloads that are stuck,
failing or too large.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunCheckConfigCommand())
	rootCmd.AddCommand(RunStatusCommand())
	rootCmd.AddCommand(RunBootstrapIndexersCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "run",
		Short: "Start every configured monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg.ApplyLogConfig()
			cfg.RegisterReloadListener(logReload)

			log.Info().Str("version", buildinfo.Version).Str("config", cfg.ConfigFileUsed()).Msg("Starting arrwarden")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg.Config)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func run(ctx context.Context, cfg *domain.Config) error {
	collector := metrics.NewCollector()

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	runners := make([]monitor.Runner, 0, len(cfg.Monitors))
	for _, mc := range cfg.Monitors {
		logger, closer, err := config.NewMonitorLogger(mc)
		if err != nil {
			return err
		}
		closers = append(closers, closer)

		client := arr.NewClient(mc.APIEndpoint, mc.APIKey, arr.WithLogger(logger))
		store := models.NewRecordStore(mc.RecordFilePath)

		runners = append(runners, monitor.New(mc, client, store, logger, monitor.WithRecorder(collector)))
	}

	supervisor := monitor.NewSupervisor(runners...)

	if cfg.MetricsEnabled {
		srv := metrics.NewServer(collector, supervisor, cfg.MetricsHost, cfg.MetricsPort)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	err := supervisor.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("One or more monitors stopped with an error")
		return err
	}

	log.Info().Msg("All monitors stopped")
	return nil
}

// logReload reports settings applied from an edited config file.
func logReload(c *domain.Config) {
	log.Info().Str("logLevel", c.LogLevel).Int("monitors", len(c.Monitors)).Msg("Configuration reloaded")
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of arrwarden",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(buildinfo.String())
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting any monitor.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/arrwarden/config.toml
- Windows: %APPDATA%\arrwarden\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := config.ResolveConfigPath(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunCheckConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := config.ResolveConfigPath(configDir)
			if _, err := os.Stat(configPath); err != nil {
				return fmt.Errorf("configuration file %s: %w", configPath, err)
			}

			cfg, err := config.New(configPath, buildinfo.Version)
			if err != nil {
				return err
			}

			cmd.Printf("Configuration %s is valid (%d monitors)\n", cfg.ConfigFileUsed(), len(cfg.Config.Monitors))
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunStatusCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "status",
		Short: "Show the tracked items of every monitor from its record file",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := config.ResolveConfigPath(configDir)
			if _, err := os.Stat(configPath); err != nil {
				return fmt.Errorf("configuration file %s: %w", configPath, err)
			}

			cfg, err := config.New(configPath, buildinfo.Version)
			if err != nil {
				return err
			}

			for _, mc := range cfg.Config.Monitors {
				rec, err := models.ReadRecordFile(mc.RecordFilePath)
				if err != nil {
					if os.IsNotExist(err) {
						cmd.Printf("%s: no record yet\n\n", mc.Name)
						continue
					}
					cmd.Printf("%s: %v\n\n", mc.Name, err)
					continue
				}
				cmd.Println(renderRecord(mc, rec))
				cmd.Println()
			}
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunBootstrapIndexersCommand() *cobra.Command {
	var (
		baseURL      string
		apiKey       string
		appProfileID int
	)

	command := &cobra.Command{
		Use:   "bootstrap-indexers",
		Short: "Add every public indexer definition to a Prowlarr instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" || apiKey == "" {
				return errors.New("--url and --api-key are required")
			}

			logger := log.Logger.With().Str("module", "prowlarr").Logger()
			client := prowlarr.NewClient(baseURL, apiKey, logger)

			summary, err := prowlarr.Bootstrap(cmd.Context(), client, appProfileID, logger)
			if err != nil {
				return err
			}

			cmd.Printf("Added %d indexers, %d failed, %d skipped\n", len(summary.Added), len(summary.Failed), summary.Skipped)
			if len(summary.Failed) > 0 {
				return errors.Errorf("%d indexers could not be added", len(summary.Failed))
			}
			return nil
		},
	}

	command.Flags().StringVar(&baseURL, "url", "http://localhost:9696/api/v1", "Prowlarr API root")
	command.Flags().StringVar(&apiKey, "api-key", "", "Prowlarr API key")
	command.Flags().IntVar(&appProfileID, "app-profile-id", prowlarr.DefaultAppProfileID, "sync profile assigned to the new indexers")

	return command
}
