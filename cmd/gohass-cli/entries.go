package main

import (
	"fmt"

	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/flow"
	"github.com/spf13/cobra"
)

func entriesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "entries", Short: "Manage config entries"}

	var domain string
	list := &cobra.Command{
		Use:   "list",
		Short: "List config entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			entries, err := core.NewFlowClient(s.conn).ListEntries(s.ctx, domain)
			if err != nil {
				return fmt.Errorf("list entries: %w", err)
			}
			return s.out.print(entries, func() [][]string { return entryRows(entries) })
		},
	}
	list.Flags().StringVar(&domain, "domain", "", "only entries of this plugin")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <entry_id>",
		Short: "Unload and remove a config entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := core.NewFlowClient(s.conn).RemoveEntry(s.ctx, args[0]); err != nil {
				return fmt.Errorf("remove entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	})
	return cmd
}

// entryRows leaves entry data out; it can hold client keys and API keys.
func entryRows(entries []flow.Entry) [][]string {
	rows := [][]string{{"ENTRY", "DOMAIN", "TITLE", "UNIQUE_ID", "SOURCE"}}
	for _, e := range entries {
		rows = append(rows, []string{e.EntryID, e.Domain, e.Title, e.UniqueID, e.Source})
	}
	return rows
}
