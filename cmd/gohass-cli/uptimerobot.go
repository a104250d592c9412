package main

import (
	"fmt"
	"strconv"

	"github.com/joshp123/gohass/plugins/uptimerobot"
	"github.com/spf13/cobra"
)

func uptimerobotCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "uptimerobot", Short: "Uptime Robot monitors"}
	cmd.AddCommand(&cobra.Command{
		Use:   "monitors",
		Short: "List monitors from the last poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			monitors, err := uptimerobot.NewServiceClient(s.conn).ListMonitors(s.ctx)
			if err != nil {
				return fmt.Errorf("list monitors: %w", err)
			}
			return s.out.print(monitors, func() [][]string { return monitorRows(monitors) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Poll Uptime Robot now and list the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			monitors, err := uptimerobot.NewServiceClient(s.conn).Refresh(s.ctx)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			return s.out.print(monitors, func() [][]string { return monitorRows(monitors) })
		},
	})
	return cmd
}

func monitorRows(monitors []uptimerobot.MonitorStatus) [][]string {
	rows := [][]string{{"ACCOUNT", "ID", "NAME", "STATUS", "UP", "URL"}}
	for _, m := range monitors {
		up := formatBool(m.Up)
		if !m.Available {
			up = "unavailable"
		}
		rows = append(rows, []string{m.Account, m.ID, m.Name, strconv.Itoa(m.Status), up, m.URL})
	}
	return rows
}
