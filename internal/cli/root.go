// Package cli implements the dsaquest command-line tool for inspecting and
// maintaining a learner's local state.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/dsa-quest/internal/store"
)

var (
	dbPath    string
	learnerID string
)

var rootCmd = &cobra.Command{
	Use:   "dsaquest",
	Short: "Inspect and maintain DSA Quest learner data",
	Long: `dsaquest works directly on the server's SQLite database.

Show and reset module progress, set interview credentials, check today's
credential usage and push or pull remote backups.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultDB := os.Getenv("DB_PATH")
	if defaultDB == "" {
		defaultDB = "./data/dsaquest.db"
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "Path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&learnerID, "learner", "", "Learner ID (the dsaquest_learner cookie value)")
}

// openStore opens the local database. Callers close the returned store.
func openStore() (*store.SQLiteStore, *store.State, error) {
	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repo, store.NewState(repo), nil
}

func requireLearner() error {
	if learnerID == "" {
		return fmt.Errorf("--learner is required")
	}
	return nil
}
