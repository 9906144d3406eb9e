package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"selfheal/domain/entities"

	"github.com/spf13/cobra"
)

func newScriptsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "List and save scripts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved scripts, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			scripts, err := store.Scripts().List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCREATED")
			for _, s := range scripts {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name> <file>",
		Short: "Save a script file, '-' reads stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readScript(cmd, args[1])
			if err != nil {
				return err
			}
			if strings.TrimSpace(code) == "" {
				return fmt.Errorf("%w: script is empty", entities.ErrInvalidRequest)
			}

			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			saved, err := store.Scripts().Save(cmd.Context(), args[0], code)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved script %s (%s)\n", saved.Name, saved.ID)
			return nil
		},
	})
	return cmd
}
