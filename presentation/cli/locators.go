package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLocatorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locators",
		Short: "Inspect and pre-seed stored locators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every stored locator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			locators, err := store.Locators().List(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(locators))
			for name := range locators {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSELECTOR")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, locators[name])
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <selector>",
		Short: "Store a selector under a locator name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Locators().Put(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}
