package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/application"
	"github.com/eztalk/relay/internal/infrastructure/config"
	"github.com/eztalk/relay/internal/infrastructure/logger"
)

const (
	appName    = "eztalk-relay"
	appVersion = "1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "EzTalk Relay: provider-agnostic streaming LLM chat proxy",
		Long: "EzTalk Relay unifies OpenAI-compatible and Google Gemini streaming chat\n" +
			"APIs behind one POST /chat endpoint emitting normalized line-delimited\n" +
			"JSON events, with optional Google Custom Search pre-flight.",
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.PersistentFlags().String("host", "", "bind address (overrides HOST)")
	rootCmd.PersistentFlags().Int("port", 0, "listen port (overrides PORT)")
	rootCmd.PersistentFlags().String("env-file", "", "environment file loaded before configuration")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	loadEnvFile(cmd)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	log, err := logger.NewLogger(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting EzTalk Relay",
		zap.String("version", appVersion),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
	return nil
}

// loadEnvFile loads --env-file when given, otherwise a ./.env if present.
// A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command) {
	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: env file %s not loaded: %v\n", path, err)
		}
		return
	}
	_ = godotenv.Load()
}

// applyFlagOverrides lets --host/--port win over environment configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		if host, err := cmd.Flags().GetString("host"); err == nil && host != "" {
			cfg.Server.Host = host
		}
	}
	if cmd.Flags().Changed("port") {
		if port, err := cmd.Flags().GetInt("port"); err == nil && port > 0 && port <= 65535 {
			cfg.Server.Port = port
		}
	}
}
