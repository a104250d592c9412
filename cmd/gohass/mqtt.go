package main

import (
	"fmt"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/mqttbridge"
	"go.uber.org/zap"
)

// startMQTT connects the state bridge, starting the embedded broker first
// when one is configured. The returned func releases both.
func startMQTT(cfg *config.MQTTConfig, hub *core.Hub, logger *zap.Logger) (*mqttbridge.Bridge, func(), error) {
	var broker *mqttbridge.Broker
	if cfg.EmbeddedAddr != "" {
		b, err := mqttbridge.StartBroker(cfg.EmbeddedAddr, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt broker: %w", err)
		}
		broker = b
		logger.Info("embedded mqtt broker listening", zap.String("addr", broker.Addr()))
	}
	closeBroker := func() {
		if broker == nil {
			return
		}
		if err := broker.Close(); err != nil {
			logger.Warn("mqtt broker close", zap.Error(err))
		}
	}

	var password string
	if cfg.PasswordFile != "" {
		secret, err := config.ReadSecret(cfg.PasswordFile)
		if err != nil {
			closeBroker()
			return nil, nil, err
		}
		password = secret
	}

	transport, err := mqttbridge.NewPahoTransport(mqttbridge.PahoConfig{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    password,
		StatusTopic: mqttbridge.StatusTopic(cfg.TopicPrefix),
	})
	if err != nil {
		closeBroker()
		return nil, nil, fmt.Errorf("mqtt: %w", err)
	}

	bridge := mqttbridge.New(transport, hub.Entities(), cfg.TopicPrefix, cfg.PublishInterval(), logger)
	return bridge, func() {
		transport.Close()
		closeBroker()
	}, nil
}
