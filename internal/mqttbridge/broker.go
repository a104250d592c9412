package mqttbridge

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// Broker is an in-process MQTT broker for installs without one.
type Broker struct {
	server *mochi.Server
	logger *zap.Logger
	addr   string
}

// StartBroker listens on addr and accepts every client.
func StartBroker(addr string, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mochi.New(&mochi.Options{
		Capabilities: mochi.NewDefaultServerCapabilities(),
		Logger:       slog.New(zapslog.NewHandler(logger.Named("broker").Core())),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("mqtt broker auth hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("mqtt broker listen %s: %w", addr, err)
	}
	if err := server.Serve(); err != nil {
		_ = server.Close()
		return nil, fmt.Errorf("mqtt broker serve: %w", err)
	}
	logger.Info("embedded mqtt broker listening", zap.String("addr", addr))
	return &Broker{server: server, logger: logger, addr: addr}, nil
}

func (b *Broker) Addr() string { return b.addr }

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	return len(b.server.Clients.GetAll())
}

func (b *Broker) Close() error {
	b.logger.Info("stopping embedded mqtt broker")
	return b.server.Close()
}
