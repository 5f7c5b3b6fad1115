package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/abhisek/companion/internal/app"
	"github.com/abhisek/companion/internal/config"
	"github.com/abhisek/companion/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Engagement and retention decisions for an AI study companion",
	Long: "companion scores student engagement, sends re-engagement nudges, hands " +
		"struggling conversations to human tutors, and tracks learning goals.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to the policy file (YAML)")
	pf.String("db", "", "Database DSN or SQLite path (overrides COMPANION_DB)")
	pf.String("driver", "", "Database driver: sqlite or pgx")
	pf.String("log-mode", "", "Log mode: dev or prod")

	rootCmd.AddCommand(engagementCmd)
	rootCmd.AddCommand(nudgeCmd)
	rootCmd.AddCommand(followupCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(escalationCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the policy file and applies the persistent flags, which
// take priority over the file and the environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Database.DSN = v
	}
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v, _ := cmd.Flags().GetString("log-mode"); v != "" {
		cfg.LogMode = v
	}
	return cfg, cfg.Validate()
}

// openApp loads the configuration and wires the engine.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}

func newApp(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

// openStore opens only the database, for commands that never reach the
// engine.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.OpenStore(cfg.Database)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
