package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-star-census/internal/config"
	"github.com/Sternrassler/repo-star-census/pkg/logging"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
)

var (
	cfgFile string
	envFile string

	// cfg and runID are set by the root pre-run hook.
	cfg   *config.Config
	runID string
)

var rootCmd = &cobra.Command{
	Use:   "star-census",
	Short: "Count and sample GitHub repository stars",
	Long: `Walks the GitHub repository id space, either exhaustively or as a
stratified sample, and records the star count of every repository it finds.

Runs are resumable: progress is checkpointed after every page and a new run
continues where the last one stopped.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Path to .env file with credentials")
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(crawlCmd, probeCmd, estimateCmd, plotCmd, versionCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	loaded, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg = loaded
	runID = uuid.NewString()

	logging.Setup(cfg.LoggingConfig(runID))
	log.Debug().Str("config", cfgFile).Msg("Configuration loaded")

	return nil
}
