package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/joshp123/gohass/internal/core"
	"github.com/spf13/cobra"
)

func pluginsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "plugins", Short: "List and describe loaded plugins"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plugins and their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			plugins, err := core.NewRegistryClient(s.conn).ListPlugins(s.ctx)
			if err != nil {
				return fmt.Errorf("list plugins: %w", err)
			}
			return s.out.print(plugins, func() [][]string { return pluginRows(plugins) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "describe <plugin_id>",
		Short: "Show a plugin's services, platforms and dashboards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			desc, err := core.NewRegistryClient(s.conn).DescribePlugin(s.ctx, args[0])
			if err != nil {
				return fmt.Errorf("describe plugin: %w", err)
			}
			return s.out.print(desc, func() [][]string { return descriptorRows(desc) })
		},
	})
	return cmd
}

func pluginRows(plugins []core.PluginSummary) [][]string {
	rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
	for _, p := range plugins {
		rows = append(rows, []string{p.PluginID, p.DisplayName, p.Version, p.Status})
	}
	return rows
}

func descriptorRows(d core.PluginDescriptor) [][]string {
	platforms := make([]string, 0, len(d.Platforms))
	for _, p := range d.Platforms {
		platforms = append(platforms, string(p))
	}
	dashboards := make([]string, 0, len(d.Dashboards))
	for _, dash := range d.Dashboards {
		dashboards = append(dashboards, dash.Name+" ("+dash.Path+")")
	}
	rows := [][]string{
		{"id:", d.PluginID},
		{"name:", d.DisplayName},
		{"version:", d.Version},
		{"status:", d.Status},
	}
	if d.HealthMessage != "" {
		rows = append(rows, []string{"health:", d.HealthMessage})
	}
	rows = append(rows,
		[]string{"services:", strings.Join(d.Services, ", ")},
		[]string{"platforms:", strings.Join(platforms, ", ")},
		[]string{"dashboards:", strings.Join(dashboards, ", ")},
	)
	if len(d.RateLimits) > 0 {
		limits := make([]string, 0, len(d.RateLimits))
		for _, b := range d.RateLimits {
			limits = append(limits, fmt.Sprintf("%d/%s", b.Requests, b.Window))
		}
		rows = append(rows, []string{"rate limits:", strings.Join(limits, ", ")})
	}
	return rows
}

func entitiesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "entities", Short: "Read entity states"}

	var platform string
	list := &cobra.Command{
		Use:   "list",
		Short: "List entity states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			states, err := core.NewRegistryClient(s.conn).ListEntities(s.ctx, core.Platform(platform))
			if err != nil {
				return fmt.Errorf("list entities: %w", err)
			}
			return s.out.print(states, func() [][]string { return stateRows(states) })
		},
	}
	list.Flags().StringVar(&platform, "platform", "", "only this platform (climate, sensor, ...)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <entity_id|name>",
		Short: "Show one entity with its attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			client := core.NewRegistryClient(s.conn)
			states, err := client.ListEntities(s.ctx, "")
			if err != nil {
				return fmt.Errorf("list entities: %w", err)
			}
			id, err := resolveEntityID(args[0], states)
			if err != nil {
				return err
			}
			state, err := client.GetEntity(s.ctx, id)
			if err != nil {
				return fmt.Errorf("get entity: %w", err)
			}
			return s.out.print(state, func() [][]string { return attributeRows(state) })
		},
	})
	return cmd
}

func climateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "climate", Short: "Control climate entities"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <entity_id|name> <temperature>",
		Short: "Set a climate entity's target temperature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			temperature, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("temperature %q: %w", args[1], err)
			}
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			client := core.NewRegistryClient(s.conn)
			states, err := client.ListEntities(s.ctx, core.PlatformClimate)
			if err != nil {
				return fmt.Errorf("list climate entities: %w", err)
			}
			id, err := resolveEntityID(args[0], states)
			if err != nil {
				return err
			}
			state, err := client.SetTemperature(s.ctx, id, temperature)
			if err != nil {
				return fmt.Errorf("set temperature: %w", err)
			}
			return s.out.print(state, func() [][]string { return stateRows([]core.State{state}) })
		},
	})
	return cmd
}

func stateRows(states []core.State) [][]string {
	rows := [][]string{{"ENTITY", "NAME", "STATE"}}
	for _, s := range states {
		rows = append(rows, []string{s.EntityID, s.Name, s.State})
	}
	return rows
}

func attributeRows(state core.State) [][]string {
	rows := [][]string{
		{"entity_id:", state.EntityID},
		{"unique_id:", state.UniqueID},
		{"name:", state.Name},
		{"state:", state.State},
	}
	keys := make([]string, 0, len(state.Attributes))
	for k := range state.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{"  " + k + ":", fmt.Sprint(state.Attributes[k])})
	}
	return rows
}
