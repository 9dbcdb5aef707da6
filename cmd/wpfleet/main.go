package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/semmidev/wpfleet/internal/app"
	"github.com/semmidev/wpfleet/internal/config"
	"github.com/semmidev/wpfleet/internal/infrastructure/logger"
)

// errRunFailed marks a run that finished but had failing sites. The
// details are already printed, so main only sets the exit status.
var errRunFailed = errors.New("one or more sites failed")

var (
	configPath string
	envPath    string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "wpfleet",
	Short:         "Back up, restore and migrate a fleet of WordPress sites",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadEnv()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/wpfleet/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "path to a .env file (default: ./.env when present)")

	rootCmd.AddCommand(backupCmd, restoreCmd, migrateCmd, listCmd, sitesCmd, daemonCmd, gdriveAuthCmd)
}

// loadEnv loads WPFLEET_* overrides from a .env file. An explicit --env
// must exist; the implicit ./.env is optional.
func loadEnv() {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envPath, err)
		}
		return
	}
	_ = godotenv.Load()
}

func newApp(ctx context.Context, quiet bool) (*app.App, error) {
	a, err := app.New(ctx, cfg, app.Options{Quiet: quiet})
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	return a, nil
}

func newCLILogger() (*logger.Logger, error) {
	return logger.New(logger.Options{Level: "info"})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
