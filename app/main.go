package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/utils/logger/handlers/slogpretty"

	"github.com/spf13/cobra"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

var Version = "0.1"

// CLI flags
var (
	configPath string
	runSource  string
	exportOut  string
	exportStat string
	tokenUser  string
	tokenTTL   string
)

var (
	cfg *config.Config
	log *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "events-catalog",
	Short:         "Events catalog ingestion service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.ResolvePath(configPath))
		if err != nil {
			return err
		}
		cfg = loaded
		log = setupLogger(cfg.Env)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, HTTP API and Telegram bot until interrupted",
	RunE:  runServe,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest every source once (or one with --source) and print the summary",
	RunE:  runOnce,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema",
	RunE:  runMigrate,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the catalog to an XLSX file",
	Example: `  events-catalog export --out catalog.xlsx
  events-catalog export --out imported.xlsx --status imported`,
	RunE: runExport,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin API token",
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (defaults to CONFIG_FILEPATH/CONFIG_FILENAME)")

	runCmd.Flags().StringVarP(&runSource, "source", "s", "", "run only this source")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "catalog.xlsx", "output file")
	exportCmd.Flags().StringVar(&exportStat, "status", "", "comma separated statuses to include")

	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "operator name stored as the token subject")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "720h", "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, runCmd, migrateCmd, exportCmd, tokenCmd)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog(slog.LevelDebug)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = setupPrettySlog(slog.LevelInfo)
	default: // If env config is invalid, set prod settings by default due to security
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
