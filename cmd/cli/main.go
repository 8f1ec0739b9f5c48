package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/botte/botte-service/config"
	"github.com/botte/botte-service/internal/database"
	"github.com/botte/botte-service/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "botte",
	Short: "Botte CLI - send messages to your chat and manage the bot",
	Long: `A CLI for the Botte notification relay. Sends messages through a running
deployment (HTTP API, direct invocation or the task queue), manages the bot
webhook, encodes and decodes queue tasks, and migrates the queue schema.`,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		// Config is optional for some commands, don't fail here
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logCfg := config.LoggingConfig{Level: "info"}
	if cfg != nil {
		logCfg = cfg.Logging
		// The CLI prints its results to stdout; logs go to stderr in console format.
		logCfg.Format = "console"
	}
	logger = logging.New(logCfg, os.Stderr, "")
	return nil
}

// requireConfig fails commands that cannot run on defaults alone.
func requireConfig(cmd *cobra.Command) error {
	if cfg == nil {
		return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
	}
	return nil
}

func initDatabase(ctx context.Context) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if err := database.Connect(ctx, cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info().Msg("Database connected")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
