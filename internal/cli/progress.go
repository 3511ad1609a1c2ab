package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/domain"
	"github.com/ashureev/dsa-quest/internal/progression"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show or reset module progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show XP, badges and per-module progress",
	RunE:  runProgressShow,
}

var progressResetCmd = &cobra.Command{
	Use:   "reset <module>",
	Short: "Reset a module to level 1 with full lives",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressReset,
}

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressResetCmd)
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	repo, state, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	st, err := state.LoadState(cmd.Context(), learnerID)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "XP: %d\n\n", st.XP)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tUNLOCKED\tLEVELS\tLIVES\tBADGE")
	fmt.Fprintln(w, "------\t--------\t------\t-----\t-----")
	for _, m := range cat.Modules() {
		p := st.Progress(m.ID, m.InitialLives)
		badge := "-"
		if st.HasBadge(m.ID) {
			badge = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d/%d\t%s\n", m.ID, p.UnlockedLevel, m.LevelCount(), p.Lives, m.InitialLives, badge)
	}
	return w.Flush()
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	if err := requireLearner(); err != nil {
		return err
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	module, err := cat.Module(args[0])
	if err != nil {
		return err
	}
	repo, state, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := cmd.Context()
	_, err = state.UpdateState(ctx, learnerID, func(st domain.LearnerState) (domain.LearnerState, error) {
		return progression.ResetModule(st, module.ID, module.InitialLives), nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Module %s reset to level 1 with %d lives\n", module.ID, module.InitialLives)
	return nil
}
