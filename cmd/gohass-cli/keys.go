package main

import (
	"fmt"
	"sort"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/logging"
	"github.com/joshp123/gohass/plugins/webostv"
	"github.com/spf13/cobra"
)

type storedKey struct {
	Host string `json:"host"`
	Key  string `json:"client_key"`
}

func keysCmd(opts *options) *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{Use: "keys", Short: "Offline webOS client key store maintenance"}
	cmd.PersistentFlags().StringVar(&keyFile, "key-file", config.DefaultWebOSKeyFile, "client key store path")

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Convert a legacy JSON key file to the SQLite store in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, _, err := logging.New(logging.Options{Level: "info", Format: "console"})
			if err != nil {
				return err
			}
			migrated, err := webostv.ConvertClientKeys(cmd.Context(), keyFile, logger)
			if err != nil {
				return err
			}
			if migrated {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", keyFile)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s needs no migration\n", keyFile)
			}
			return nil
		},
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List hosts with a stored client key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := parseOutputMode(opts.output)
			if err != nil {
				return err
			}
			store, err := webostv.OpenKeyStore(keyFile, nil, nil)
			if err != nil {
				return err
			}
			defer store.Close()
			all, err := store.All(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]storedKey, 0, len(all))
			for host, key := range all {
				keys = append(keys, storedKey{Host: host, Key: key})
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i].Host < keys[j].Host })
			out := printer{mode: mode, w: cmd.OutOrStdout()}
			return out.print(keys, func() [][]string { return keyRows(keys) })
		},
	}
	cmd.AddCommand(list)
	return cmd
}

// keyRows masks keys; json and yaml output carry them in full.
func keyRows(keys []storedKey) [][]string {
	rows := [][]string{{"HOST", "CLIENT_KEY"}}
	for _, k := range keys {
		masked := k.Key
		if len(masked) > 4 {
			masked = masked[:4] + "..."
		}
		rows = append(rows, []string{k.Host, masked})
	}
	return rows
}
