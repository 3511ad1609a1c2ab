package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/dsa-quest/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Push or pull the learner's remote backup",
	Long: `Push or pull the learner's state to the remote libsql database.

The remote is read from BACKUP_URL and BACKUP_AUTH_TOKEN. Credentials are
never uploaded, and a pull keeps the local credentials.`,
}

var backupPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload local state to the remote backup",
	RunE:  runBackupPush,
}

var backupPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace local state with the remote backup",
	RunE:  runBackupPull,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupPushCmd)
	backupCmd.AddCommand(backupPullCmd)
}

// openSyncer connects to the remote named by the environment.
func openSyncer() (*backup.Syncer, func(), error) {
	url := os.Getenv("BACKUP_URL")
	if url == "" {
		return nil, nil, backup.ErrDisabled
	}
	remote, err := backup.OpenTurso(url, os.Getenv("BACKUP_AUTH_TOKEN"))
	if err != nil {
		return nil, nil, err
	}
	repo, _, err := openStore()
	if err != nil {
		_ = remote.Close()
		return nil, nil, err
	}
	closeAll := func() {
		_ = repo.Close()
		_ = remote.Close()
	}
	return backup.NewSyncer(repo, remote, nil), closeAll, nil
}

func runBackupPush(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	syncer, closeAll, err := openSyncer()
	if err != nil {
		return err
	}
	defer closeAll()

	if err := syncer.Push(cmd.Context(), learnerID); err != nil {
		return fmt.Errorf("backup push failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Backup pushed")
	return nil
}

func runBackupPull(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	syncer, closeAll, err := openSyncer()
	if err != nil {
		return err
	}
	defer closeAll()

	found, err := syncer.Pull(cmd.Context(), learnerID)
	if err != nil {
		return fmt.Errorf("backup pull failed: %w", err)
	}
	if !found {
		fmt.Fprintln(cmd.OutOrStdout(), "No backup found for this learner")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Backup restored")
	return nil
}
