package webostv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// ErrConnectionClosed is returned to requests in flight when the socket drops.
var ErrConnectionClosed = errors.New("connection closed")

// PairError reports that the TV refused or never completed registration.
type PairError struct {
	Message string
}

func (e *PairError) Error() string {
	return "webos pairing failed: " + e.Message
}

// CommandError reports a request the TV rejected or that could not be sent.
type CommandError struct {
	URI     string
	Message string
}

func (e *CommandError) Error() string {
	if e.URI == "" {
		return "webos command failed: " + e.Message
	}
	return fmt.Sprintf("webos command %s failed: %s", e.URI, e.Message)
}

// KeyStorage persists client keys by host.
type KeyStorage interface {
	Get(ctx context.Context, host string) (string, bool, error)
	Put(ctx context.Context, host, key string) error
}

// TVState is the subset of TV state tracked through subscriptions.
type TVState struct {
	Volume      int
	Muted       bool
	App         string
	SoundOutput string
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClientKey(key string) Option {
	return func(c *Client) { c.clientKey = key }
}

// WithKeyStore reads the client key on Init and, unless the client is a
// no-store client, writes it back after every registration.
func WithKeyStore(store KeyStorage) Option {
	return func(c *Client) { c.store = store }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type session struct {
	conn    *websocket.Conn
	done    chan struct{}
	writeMu sync.Mutex
}

func (s *session) write(msg message, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteJSON(msg)
}

// Client speaks SSAP to one TV.
type Client struct {
	host    string
	url     string
	logger  *zap.Logger
	store   KeyStorage
	noStore bool
	timeout time.Duration
	dialer  *websocket.Dialer

	connectMu sync.Mutex

	mu        sync.RWMutex
	sess      *session
	clientKey string
	state     TVState

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[string]chan message
	subs      map[string]func(map[string]any)

	callbacksMu sync.Mutex
	callbacks   []func()
}

// NewClient builds a client for host. A host without a port uses the SSAP
// port 3000.
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		host:    host,
		url:     socketURL(host),
		logger:  zap.NewNop(),
		timeout: defaultRequestTimeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: defaultRequestTimeout},
		pending: make(map[string]chan message),
		subs:    make(map[string]func(map[string]any)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("host", host))
	return c
}

// NewNoStoreClient builds a client that never writes its client key. Keys
// are carried in config entries instead.
func NewNoStoreClient(host string, opts ...Option) *Client {
	c := NewClient(host, opts...)
	c.noStore = true
	return c
}

func socketURL(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return "ws://" + host + "/"
	}
	return "ws://" + net.JoinHostPort(strings.Trim(host, "[]"), defaultPort) + "/"
}

func (c *Client) Host() string { return c.host }

// Init loads the stored client key, if a key store is configured.
func (c *Client) Init(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	key, ok, err := c.store.Get(ctx, c.host)
	if err != nil {
		return fmt.Errorf("read client key for %s: %w", c.host, err)
	}
	if ok {
		c.mu.Lock()
		c.clientKey = key
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) ClientKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientKey
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess != nil
}

func (c *Client) State() TVState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) session() *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Connect dials the TV and registers. Without a client key the TV shows a
// pairing prompt and Connect waits until it is answered or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	if c.IsConnected() {
		return nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.host, err)
	}
	key, err := c.register(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	sess := &session{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if key != "" {
		c.clientKey = key
	}
	c.sess = sess
	c.mu.Unlock()

	c.pendingMu.Lock()
	clear(c.subs)
	c.pendingMu.Unlock()

	go c.readLoop(sess)
	c.logger.Info("connected to tv")

	if c.store != nil && !c.noStore && key != "" {
		if err := c.store.Put(ctx, c.host, key); err != nil {
			c.logger.Warn("failed to store client key", zap.Error(err))
		}
	}
	c.subscribeState(ctx)
	c.notify()
	return nil
}

func (c *Client) register(ctx context.Context, conn *websocket.Conn) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	payload, err := json.Marshal(registerPayload{
		PairingType: pairingTypePrompt,
		ClientKey:   c.ClientKey(),
		Manifest:    registrationManifest(),
	})
	if err != nil {
		return "", fmt.Errorf("encode register: %w", err)
	}
	if err := conn.WriteJSON(message{Type: messageRegister, ID: registerID, Payload: payload}); err != nil {
		return "", fmt.Errorf("send register: %w", err)
	}

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("register: %w", ctx.Err())
			}
			return "", fmt.Errorf("read register reply: %w", err)
		}
		var reply replyPayload
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, &reply)
		}
		switch msg.Type {
		case messageRegistered:
			return reply.ClientKey, nil
		case messageError:
			return "", &PairError{Message: msg.Error}
		case messageResponse:
			if reply.PairingType == pairingTypePrompt {
				c.logger.Info("waiting for the pairing prompt to be accepted on the tv")
			}
		}
	}
}

func (c *Client) readLoop(sess *session) {
	defer close(sess.done)
	for {
		var msg message
		if err := sess.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			unexpected := c.sess == sess
			if unexpected {
				c.sess = nil
			}
			c.mu.Unlock()
			if unexpected {
				c.logger.Warn("connection to tv lost", zap.Error(err))
			}
			_ = sess.conn.Close()
			c.notify()
			return
		}

		c.pendingMu.Lock()
		reply, waiting := c.pending[msg.ID]
		handler := c.subs[msg.ID]
		c.pendingMu.Unlock()

		if waiting {
			select {
			case reply <- msg:
			default:
			}
		}
		if handler != nil && msg.Type == messageResponse {
			payload, err := decodePayload(msg.Payload)
			if err != nil {
				c.logger.Debug("bad subscription payload", zap.Error(err))
				continue
			}
			handler(payload)
		}
	}
}

// Disconnect closes the connection. It is a no-op when not connected.
func (c *Client) Disconnect() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.writeMu.Lock()
	_ = sess.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	sess.writeMu.Unlock()
	err := sess.conn.Close()
	<-sess.done
	c.logger.Info("disconnected from tv")
	return err
}

// Request sends an SSAP request and returns the reply payload.
func (c *Client) Request(ctx context.Context, uri string, payload map[string]any) (map[string]any, error) {
	return c.call(ctx, messageRequest, uri, payload, nil)
}

func (c *Client) call(ctx context.Context, kind, uri string, payload map[string]any, handler func(map[string]any)) (map[string]any, error) {
	sess := c.session()
	if sess == nil {
		return nil, &CommandError{URI: uri, Message: "not connected"}
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", uri, err)
		}
		raw = encoded
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	reply := make(chan message, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	if handler != nil {
		c.subs[id] = handler
	}
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := sess.write(message{Type: kind, ID: id, URI: uri, Payload: raw}, c.timeout); err != nil {
		return nil, fmt.Errorf("send %s: %w", uri, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case msg := <-reply:
		out, err := parseReply(uri, msg)
		if err != nil && handler != nil {
			c.pendingMu.Lock()
			delete(c.subs, id)
			c.pendingMu.Unlock()
		}
		return out, err
	case <-sess.done:
		return nil, fmt.Errorf("%s: %w", uri, ErrConnectionClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &CommandError{URI: uri, Message: "timeout waiting for response"}
	}
}

func parseReply(uri string, msg message) (map[string]any, error) {
	if msg.Type == messageError {
		return nil, &CommandError{URI: uri, Message: msg.Error}
	}
	var reply replyPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return nil, fmt.Errorf("decode %s reply: %w", uri, err)
		}
	}
	if reply.ReturnValue != nil && !*reply.ReturnValue {
		text := reply.ErrorText
		if text == "" {
			text = "request rejected"
		}
		return nil, &CommandError{URI: uri, Message: text}
	}
	return decodePayload(msg.Payload)
}

func (c *Client) subscribeState(ctx context.Context) {
	subscriptions := map[string]func(map[string]any){
		uriGetVolume: func(p map[string]any) {
			c.updateState(func(s *TVState) {
				if status, ok := p["volumeStatus"].(map[string]any); ok {
					p = status
				}
				if v, ok := p["volume"].(float64); ok {
					s.Volume = int(v)
				}
				if m, ok := p["muted"].(bool); ok {
					s.Muted = m
				}
				if m, ok := p["muteStatus"].(bool); ok {
					s.Muted = m
				}
			})
		},
		uriForegroundApp: func(p map[string]any) {
			c.updateState(func(s *TVState) {
				if app, ok := p["appId"].(string); ok {
					s.App = app
				}
			})
		},
		uriGetSoundOutput: func(p map[string]any) {
			c.updateState(func(s *TVState) {
				if out, ok := p["soundOutput"].(string); ok {
					s.SoundOutput = out
				}
			})
		},
	}
	for uri, handler := range subscriptions {
		if _, err := c.call(ctx, messageSubscribe, uri, nil, handler); err != nil {
			c.logger.Debug("subscription failed", zap.String("uri", uri), zap.Error(err))
		}
	}
}

func (c *Client) updateState(fn func(*TVState)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.notify()
}

// AddStateUpdateCallback registers fn to run on every state change and on
// connect and disconnect.
func (c *Client) AddStateUpdateCallback(fn func()) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

func (c *Client) ClearStateUpdateCallbacks() {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks = nil
}

func (c *Client) notify() {
	c.callbacksMu.Lock()
	callbacks := append([]func(){}, c.callbacks...)
	c.callbacksMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Button presses a remote-control key through the pointer input socket.
func (c *Client) Button(ctx context.Context, name string) error {
	reply, err := c.Request(ctx, uriPointerSocket, nil)
	if err != nil {
		return err
	}
	path, _ := reply["socketPath"].(string)
	if path == "" {
		return &CommandError{URI: uriPointerSocket, Message: "no pointer socket path"}
	}
	conn, _, err := c.dialer.DialContext(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("open pointer socket: %w", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(buttonFrame(name))); err != nil {
		return fmt.Errorf("send button %s: %w", name, err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

// Command sends an arbitrary SSAP request.
func (c *Client) Command(ctx context.Context, uri string, payload map[string]any) (map[string]any, error) {
	return c.Request(ctx, uri, payload)
}

func (c *Client) SelectSoundOutput(ctx context.Context, output string) error {
	_, err := c.Request(ctx, uriSoundOutput, map[string]any{"output": output})
	return err
}

// CreateToast shows a notification on the TV. iconPath is optional.
func (c *Client) CreateToast(ctx context.Context, text, iconPath string) error {
	payload := map[string]any{"message": text}
	if iconPath != "" {
		data, err := os.ReadFile(iconPath)
		if err != nil {
			return fmt.Errorf("read toast icon: %w", err)
		}
		payload["iconData"] = base64.StdEncoding.EncodeToString(data)
		payload["iconExtension"] = strings.TrimPrefix(filepath.Ext(iconPath), ".")
	}
	_, err := c.Request(ctx, uriCreateToast, payload)
	return err
}
