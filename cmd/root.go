package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodsense/internal/config"
	"github.com/andresmejia3/moodsense/internal/logging"
	"github.com/andresmejia3/moodsense/internal/store"
)

var (
	// DB is the database connection shared by subcommands. It stays nil unless a
	// connection string is configured or the command needs one.
	DB *store.Store
	// Cfg is the effective configuration of this run.
	Cfg *config.Config
	// Log is the process logger.
	Log *logrus.Logger

	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "moodsense",
	Short:   "Emotion-aware study sessions from your webcam",
	Long:    "moodsense samples facial emotions while you study, scores stress on a 1-5 scale and adapts generated quiz questions to it.",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		Log, err = logging.New(logging.Options{Level: Cfg.Log.Level, Format: Cfg.Log.Format})
		if err != nil {
			return err
		}
		if Cfg.File != "" {
			Log.WithField("file", Cfg.File).Debug("config loaded")
		}

		// Persisting is optional: only connect when a database was configured.
		if url := resolveDBURL(Cfg.DB.URL, false); url != "" {
			if err := connectDB(cmd.Context(), url); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
	SilenceUsage: true,
}

// resolveDBURL picks the connection string: the configured one, else one built from
// POSTGRES_* variables. With fallback set, a local default is returned as a last resort.
func resolveDBURL(configured string, fallback bool) string {
	if configured != "" {
		return configured
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	if fallback {
		return "postgres://localhost:5432/moodsense"
	}
	return ""
}

func connectDB(ctx context.Context, url string) error {
	var err error
	// Use the command's context (which will be cancellable) for the connection
	DB, err = store.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// requireDB connects with the fallback URL when no database was configured.
func requireDB(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	return connectDB(ctx, resolveDBURL(Cfg.DB.URL, true))
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./moodsense.yaml or ~/.config/moodsense/moodsense.yaml)")
	rootCmd.PersistentFlags().String("db", "", "PostgreSQL connection string; results are stored only when set")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text or json)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Directory for JSON result files")
}
