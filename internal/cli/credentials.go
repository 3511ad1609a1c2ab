package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/dsa-quest/internal/credential"
	"github.com/ashureev/dsa-quest/internal/domain"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the learner's model credentials",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace both credential slots",
	Long: `Replace the primary and secondary credentials wholesale.

A slot left empty is cleared. A ceiling of 0 means unbounded.

Examples:
  dsaquest credentials set --learner lrn_... --primary KEY --primary-ceiling 50
  dsaquest credentials set --learner lrn_... --primary KEY --secondary BACKUP_KEY`,
	RunE: runCredentialsSet,
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the credential slots with secrets masked",
	RunE:  runCredentialsShow,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's request count per credential",
	RunE:  runUsage,
}

var (
	primarySecret    string
	primaryCeiling   int
	secondarySecret  string
	secondaryCeiling int
)

func init() {
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(usageCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)

	credentialsSetCmd.Flags().StringVar(&primarySecret, "primary", "", "Primary API key")
	credentialsSetCmd.Flags().IntVar(&primaryCeiling, "primary-ceiling", 0, "Daily request ceiling for the primary key")
	credentialsSetCmd.Flags().StringVar(&secondarySecret, "secondary", "", "Secondary API key")
	credentialsSetCmd.Flags().IntVar(&secondaryCeiling, "secondary-ceiling", 0, "Daily request ceiling for the secondary key")
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	if primaryCeiling < 0 || secondaryCeiling < 0 {
		return fmt.Errorf("ceilings cannot be negative")
	}
	repo, state, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	settings := domain.CredentialSettings{
		Primary:   domain.CredentialSlot{Secret: primarySecret, DailyCeiling: primaryCeiling},
		Secondary: domain.CredentialSlot{Secret: secondarySecret, DailyCeiling: secondaryCeiling},
	}.Normalize()
	if err := state.SaveCredentials(cmd.Context(), learnerID, settings); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved")
	return printCredentials(cmd, settings.Masked())
}

func runCredentialsShow(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	repo, state, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	settings, err := state.LoadCredentials(cmd.Context(), learnerID)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	return printCredentials(cmd, settings.Masked())
}

func printCredentials(cmd *cobra.Command, settings domain.CredentialSettings) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tKEY\tCEILING")
	for _, role := range domain.Roles {
		slot := settings.Slot(role)
		key := slot.Secret
		if key == "" {
			key = "(not set)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", role, key, formatCeiling(slot))
	}
	return w.Flush()
}

func runUsage(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	repo, state, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	ledger, err := credential.NewRegistry(state, nil).Ledger(cmd.Context(), learnerID)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage for %s\n\n", ledger.Today())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tUSED\tCEILING\tSTATUS")
	fmt.Fprintln(w, "----\t----\t-------\t------")
	settings := ledger.Settings()
	for _, role := range domain.Roles {
		slot := settings.Slot(role)
		status := "OK"
		switch {
		case !slot.Usable():
			status = "not set"
		case credential.Exhausted(ledger, role):
			status = "LIMIT REACHED"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", role, ledger.UsageToday(role), formatCeiling(slot), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, n := range credential.CheckAndWarn(ledger) {
		fmt.Fprintf(out, "\n! %s", n.Message)
	}
	fmt.Fprintln(out)
	return nil
}

func formatCeiling(slot domain.CredentialSlot) string {
	if !slot.Bounded() {
		return "unbounded"
	}
	return fmt.Sprintf("%d/day", slot.DailyCeiling)
}
