package webostv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/joshp123/gohass/internal/blob"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

type tvConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *tvConn) send(msg message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// fakeTV answers SSAP on / and accepts button frames on /pointer.
type fakeTV struct {
	server *httptest.Server

	mu           sync.Mutex
	key          string
	reject       bool
	silent       bool
	registerKeys []string
	requests     []message
	buttons      []string
	conns        []*tvConn
}

func newFakeTV(t *testing.T) *fakeTV {
	t.Helper()
	tv := &fakeTV{key: "key-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/", tv.serveSSAP)
	mux.HandleFunc("/pointer", tv.servePointer)
	tv.server = httptest.NewServer(mux)
	t.Cleanup(tv.close)
	return tv
}

func (tv *fakeTV) host() string {
	return tv.server.Listener.Addr().String()
}

func (tv *fakeTV) set(fn func(tv *fakeTV)) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	fn(tv)
}

func (tv *fakeTV) close() {
	tv.server.Close()
	tv.dropAll()
}

func (tv *fakeTV) dropAll() {
	tv.mu.Lock()
	conns := tv.conns
	tv.conns = nil
	tv.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (tv *fakeTV) seenRegisterKeys() []string {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return append([]string(nil), tv.registerKeys...)
}

func (tv *fakeTV) seenButtons() []string {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return append([]string(nil), tv.buttons...)
}

// request returns the last request or subscription sent to uri.
func (tv *fakeTV) request(uri string) (message, bool) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	for i := len(tv.requests) - 1; i >= 0; i-- {
		if tv.requests[i].URI == uri {
			return tv.requests[i], true
		}
	}
	return message{}, false
}

// push sends a subscription update to every open connection.
func (tv *fakeTV) push(uri string, payload map[string]any) {
	sub, ok := tv.request(uri)
	if !ok {
		return
	}
	raw, _ := json.Marshal(payload)
	tv.mu.Lock()
	conns := append([]*tvConn(nil), tv.conns...)
	tv.mu.Unlock()
	for _, c := range conns {
		_ = c.send(message{Type: messageResponse, ID: sub.ID, Payload: raw})
	}
}

func (tv *fakeTV) serveSSAP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &tvConn{conn: ws}
	tv.mu.Lock()
	tv.conns = append(tv.conns, conn)
	tv.mu.Unlock()
	defer ws.Close()

	var register message
	if err := ws.ReadJSON(&register); err != nil {
		return
	}
	var reg registerPayload
	_ = json.Unmarshal(register.Payload, &reg)

	tv.mu.Lock()
	tv.registerKeys = append(tv.registerKeys, reg.ClientKey)
	reject, silent, key := tv.reject, tv.silent, tv.key
	tv.mu.Unlock()

	switch {
	case silent:
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	case reject:
		_ = conn.send(message{Type: messageError, ID: register.ID, Error: "403 User rejected pairing"})
		return
	}
	if reg.ClientKey == "" {
		_ = conn.send(message{Type: messageResponse, ID: register.ID, Payload: json.RawMessage(`{"pairingType":"PROMPT","returnValue":true}`)})
	}
	registered, _ := json.Marshal(map[string]string{clientKeyPayloadKey: key})
	if err := conn.send(message{Type: messageRegistered, ID: register.ID, Payload: registered}); err != nil {
		return
	}

	for {
		var msg message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		tv.mu.Lock()
		tv.requests = append(tv.requests, msg)
		tv.mu.Unlock()
		if err := conn.send(tv.reply(r, msg)); err != nil {
			return
		}
	}
}

func (tv *fakeTV) reply(r *http.Request, msg message) message {
	payload := map[string]any{"returnValue": true}
	switch msg.URI {
	case uriPointerSocket:
		payload["socketPath"] = "ws://" + r.Host + "/pointer"
	case uriGetVolume:
		payload["volumeStatus"] = map[string]any{"volume": 12, "muteStatus": false}
	case uriForegroundApp:
		payload["appId"] = "netflix"
	case uriGetSoundOutput:
		payload["soundOutput"] = "tv_speaker"
	case "ssap://fail":
		payload["returnValue"] = false
		payload["errorText"] = "no such service"
	case "ssap://error":
		return message{Type: messageError, ID: msg.ID, Error: "401 insufficient permissions"}
	}
	raw, _ := json.Marshal(payload)
	return message{Type: messageResponse, ID: msg.ID, Payload: raw}
}

func (tv *fakeTV) servePointer(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			if name, ok := strings.CutPrefix(line, "name:"); ok {
				tv.mu.Lock()
				tv.buttons = append(tv.buttons, name)
				tv.mu.Unlock()
			}
		}
	}
}

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]string
	puts int
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{keys: map[string]string{}}
}

func (m *memoryKeys) Get(_ context.Context, host string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[host]
	return key, ok, nil
}

func (m *memoryKeys) Put(_ context.Context, host, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[host] = key
	m.puts++
	return nil
}

type memoryBlob struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail error
}

func newMemoryBlob() *memoryBlob {
	return &memoryBlob{docs: map[string][]byte{}}
}

func (m *memoryBlob) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	data, ok := m.docs[name]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (m *memoryBlob) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

var errBlobDown = errors.New("blob store down")
