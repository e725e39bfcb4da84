package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newCollectionsCmd(deps *CmdDeps) *cobra.Command {
	return &cobra.Command{
		Use:     "collections",
		Aliases: []string{"ls"},
		Short:   "List collections with record counts and last allocated id",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := deps.open(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			names, err := rt.store.ListCollections(ctx)
			if err != nil {
				return fmt.Errorf("failed to list collections: %w", err)
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No collections found.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Collection", "Records", "Last ID"})
			for _, name := range names {
				records, err := rt.store.List(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", name, err)
				}
				last, err := rt.store.Current(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to read sequence for %s: %w", name, err)
				}
				t.AppendRow(table.Row{name, len(records), last})
			}
			t.Render()
			return nil
		},
	}
}
