package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/flow"
	"github.com/joshp123/gohass/plugins/webostv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const webosDomain = "webostv"

func webosCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "webos", Short: "LG webOS TV pairing and remote control"}
	cmd.AddCommand(
		webosPairCmd(opts),
		webosButtonCmd(opts),
		webosCommandCmd(opts),
		webosSoundOutputCmd(opts),
		webosNotifyCmd(opts),
		webosToastCmd(),
	)
	return cmd
}

func webosPairCmd(opts *options) *cobra.Command {
	var (
		name string
		wait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "pair <host>",
		Short: "Pair a TV through the daemon; accept the prompt on the TV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			// The pairing prompt can outlive the default deadline.
			ctx, cancel := contextWithTimeout(cmd, wait+opts.timeout)
			defer cancel()

			client := core.NewFlowClient(s.conn)
			result, err := client.Init(ctx, webosDomain, flow.SourceUser, nil)
			if err != nil {
				return fmt.Errorf("start flow: %w", err)
			}
			if result.Type == flow.ResultAbort {
				return fmt.Errorf("pairing aborted: %s", result.Reason)
			}
			input := map[string]any{"host": args[0]}
			if name != "" {
				input["name"] = name
			}
			result, err = client.Configure(ctx, result.FlowID, input)
			if err != nil {
				return fmt.Errorf("configure flow: %w", err)
			}
			if result.Type == flow.ResultProgress {
				fmt.Fprintln(cmd.ErrOrStderr(), "accept the pairing request on the TV...")
				result, err = client.Wait(ctx, result.FlowID, wait)
				if err != nil {
					return fmt.Errorf("wait for pairing: %w", err)
				}
			}
			return s.out.print(result, func() [][]string { return pairRows(result) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "entity name (default "+config.DefaultWebOSName+")")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "how long to wait for the TV prompt")
	return cmd
}

func pairRows(result flow.Result) [][]string {
	switch result.Type {
	case flow.ResultCreateEntry:
		return [][]string{{"paired:", result.Title}, {"entry:", result.EntryID}}
	case flow.ResultAbort:
		return [][]string{{"aborted:", result.Reason}}
	}
	rows := [][]string{{"step:", result.StepID}}
	for field, reason := range result.Errors {
		rows = append(rows, []string{field + ":", reason})
	}
	return rows
}

func webosButtonCmd(opts *options) *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "button <name>",
		Short: "Press a remote button (HOME, EXIT, VOLUMEUP, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := webostv.NewServiceClient(s.conn).Button(s.ctx, targets, args[0])
			return reportCalled(cmd, "button", n, err)
		},
	}
	targetFlag(cmd, &targets)
	return cmd
}

func webosCommandCmd(opts *options) *cobra.Command {
	var (
		targets []string
		payload string
	)
	cmd := &cobra.Command{
		Use:   "command <ssap_uri>",
		Short: "Send a raw SSAP request, e.g. ssap://system.launcher/launch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body map[string]any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &body); err != nil {
					return fmt.Errorf("payload: %w", err)
				}
			}
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := webostv.NewServiceClient(s.conn).Command(s.ctx, targets, args[0], body)
			return reportCalled(cmd, "command", n, err)
		},
	}
	targetFlag(cmd, &targets)
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	return cmd
}

func webosSoundOutputCmd(opts *options) *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "sound-output <output>",
		Short: "Select the sound output (tv_speaker, external_arc, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := webostv.NewServiceClient(s.conn).SelectSoundOutput(s.ctx, targets, args[0])
			return reportCalled(cmd, "select_sound_output", n, err)
		},
	}
	targetFlag(cmd, &targets)
	return cmd
}

func webosNotifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "notify <notify_entity_id> <message>",
		Short: "Show a toast through a paired TV's notify entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := webostv.NewServiceClient(s.conn).Notify(s.ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}

// webosToastCmd talks to the TV directly with a key from the key store,
// without a running daemon.
func webosToastCmd() *cobra.Command {
	var (
		keyFile string
		icon    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "toast <host> <message>",
		Short: "Show a toast on a TV using a stored client key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()
			logger := zap.NewNop()

			store, err := webostv.OpenKeyStore(keyFile, nil, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			client := webostv.NewClient(args[0], webostv.WithKeyStore(store), webostv.WithLogger(logger))
			if err := client.Init(ctx); err != nil {
				return err
			}
			if client.ClientKey() == "" {
				return errors.New("no stored client key for " + args[0] + "; pair it first")
			}
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = client.Disconnect() }()
			if err := client.CreateToast(ctx, args[1], icon); err != nil {
				return fmt.Errorf("toast: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", config.DefaultWebOSKeyFile, "SQLite client key store")
	cmd.Flags().StringVar(&icon, "icon", "", "PNG icon path")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "connect and send deadline")
	return cmd
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}

func targetFlag(cmd *cobra.Command, targets *[]string) {
	cmd.Flags().StringSliceVarP(targets, "entity", "e", []string{webostv.EntityAll}, "media_player entity ids, or all")
}

func reportCalled(cmd *cobra.Command, service string, n int, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s sent to %s\n", service, pluralTVs(n))
	return nil
}

func pluralTVs(n int) string {
	if n == 1 {
		return "1 tv"
	}
	return strconv.Itoa(n) + " tvs"
}
