package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joshp123/gohass/internal/config"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultAddr = "gohass:9000"

// options are the persistent flags shared by every subcommand.
type options struct {
	addr    string
	output  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "gohass-cli",
		Short:         "Inspect and drive a running gohass daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			_, err := parseOutputMode(opts.output)
			return err
		},
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "daemon gRPC address (default $GOHASS_GRPC_ADDR, then config)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json or yaml")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-command deadline")

	root.AddCommand(
		pluginsCmd(opts),
		entitiesCmd(opts),
		climateCmd(opts),
		entriesCmd(opts),
		clausiusCmd(opts),
		webosCmd(opts),
		uptimerobotCmd(opts),
		keysCmd(opts),
	)
	return root
}

// session is one connected command invocation.
type session struct {
	ctx    context.Context
	conn   *grpc.ClientConn
	out    printer
	cancel context.CancelFunc
}

func (s *session) Close() {
	s.cancel()
	_ = s.conn.Close()
}

func (o *options) connect(cmd *cobra.Command) (*session, error) {
	addr := o.addr
	if addr == "" {
		addr = resolveAddr()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	mode, _ := parseOutputMode(o.output)
	return &session{ctx: ctx, conn: conn, out: printer{mode: mode, w: cmd.OutOrStdout()}, cancel: cancel}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func resolveAddr() string {
	if value := os.Getenv("GOHASS_GRPC_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		if addr := addrFromConfig(path); addr != "" {
			return addr
		}
	}
	return defaultAddr
}

func configSearchPaths() []string {
	paths := []string{envOrDefault("GOHASS_CONFIG", config.DefaultPath)}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "gohass", "config.yaml"))
	}
	return paths
}

func addrFromConfig(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	cfg, err := config.Load(path)
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.Core.GRPCAddr
}
