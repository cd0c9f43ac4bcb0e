package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCursorsCommand(a *app) *cobra.Command {
	cursorsCmd := &cobra.Command{Use: "cursors", Short: "Consumer group cursors"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every group's committed sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			all, err := rt.Cursors().List()
			if err != nil {
				return err
			}
			groups := make([]string, 0, len(all))
			for g := range all {
				groups = append(groups, g)
			}
			sort.Strings(groups)
			next := rt.Queue().CurrentSequence()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tCOMMITTED\tLAG")
			for _, g := range groups {
				var lag uint64
				if seq := all[g]; seq+1 < next {
					lag = next - seq - 1
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\n", g, all[g], lag)
			}
			return tw.Flush()
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <group>",
		Short: "Forget a group's cursor so it restarts from the beginning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Cursors().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted cursor %s\n", args[0])
			return nil
		},
	}

	cursorsCmd.AddCommand(listCmd, deleteCmd)
	return cursorsCmd
}
