package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/dsa-quest/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the module catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List modules and their levels",
	RunE:  runCatalogList,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Default()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tLEVEL\tNAME\tSURPRISE")
	for _, m := range cat.Modules() {
		for _, l := range m.Levels {
			surprise := ""
			if l.Surprise {
				surprise = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", m.ID, l.ID, l.Name, surprise)
		}
	}
	return w.Flush()
}
