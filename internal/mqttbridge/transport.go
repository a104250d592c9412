package mqttbridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transport is the broker connection the bridge publishes through.
type Transport interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(filter string, cb func(topic string, payload []byte)) (func(), error)
	Close()
}

// PahoConfig configures a paho client connection.
type PahoConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// StatusTopic receives a retained "online" on connect and "offline" as
	// the last will.
	StatusTopic string
}

// PahoTransport keeps subscriptions across reconnects.
type PahoTransport struct {
	client mqtt.Client
	status string

	mu     sync.Mutex
	subs   map[string]map[int]func(string, []byte)
	nextID int
}

func NewPahoTransport(cfg PahoConfig) (*PahoTransport, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, "offline", 1, true)
	}

	t := &PahoTransport{status: cfg.StatusTopic, subs: make(map[string]map[int]func(string, []byte))}
	opts.OnConnect = func(client mqtt.Client) {
		if t.status != "" {
			client.Publish(t.status, 1, true, "online")
		}
		t.resubscribeAll(client)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15*time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}
	t.client = client
	return t, nil
}

func (t *PahoTransport) Publish(topic string, retained bool, payload []byte) error {
	token := t.client.Publish(topic, 1, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// Subscribe registers cb for a topic filter, which may use + and # wildcards.
// The returned func removes the callback.
func (t *PahoTransport) Subscribe(filter string, cb func(topic string, payload []byte)) (func(), error) {
	t.mu.Lock()
	if t.subs[filter] == nil {
		t.subs[filter] = make(map[int]func(string, []byte))
	}
	id := t.nextID
	t.nextID++
	t.subs[filter][id] = cb
	needSubscribe := len(t.subs[filter]) == 1
	t.mu.Unlock()

	if needSubscribe {
		if token := t.client.Subscribe(filter, 1, t.handler(filter)); token.Wait() && token.Error() != nil {
			t.remove(filter, id)
			return nil, fmt.Errorf("subscribe %s: %w", filter, token.Error())
		}
	}

	return func() {
		if t.remove(filter, id) {
			_ = t.client.Unsubscribe(filter).Wait()
		}
	}, nil
}

// remove reports whether filter has no callbacks left.
func (t *PahoTransport) remove(filter string, id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	callbacks := t.subs[filter]
	if callbacks == nil {
		return false
	}
	delete(callbacks, id)
	if len(callbacks) > 0 {
		return false
	}
	delete(t.subs, filter)
	return true
}

func (t *PahoTransport) handler(filter string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		t.mu.Lock()
		callbacks := t.subs[filter]
		list := make([]func(string, []byte), 0, len(callbacks))
		for _, cb := range callbacks {
			list = append(list, cb)
		}
		t.mu.Unlock()
		for _, cb := range list {
			cb(msg.Topic(), msg.Payload())
		}
	}
}

func (t *PahoTransport) resubscribeAll(client mqtt.Client) {
	t.mu.Lock()
	filters := make([]string, 0, len(t.subs))
	for filter := range t.subs {
		filters = append(filters, filter)
	}
	t.mu.Unlock()
	for _, filter := range filters {
		_ = client.Subscribe(filter, 1, t.handler(filter)).Wait()
	}
}

// Close marks the client offline and disconnects.
func (t *PahoTransport) Close() {
	if t.status != "" {
		_ = t.client.Publish(t.status, 1, true, "offline").WaitTimeout(time.Second)
	}
	t.client.Disconnect(250)
}
