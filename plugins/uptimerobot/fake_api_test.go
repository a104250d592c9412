package uptimerobot

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

const testAPIKey = "1234"

var (
	testAccount = Account{Email: "test@test.test", UserID: 1234567890}
	testMonitor = Monitor{ID: 1234, FriendlyName: "Test monitor", Status: StatusUp, Type: 1, URL: "http://example.com"}
)

// fakeAPI serves getMonitors and getAccountDetails for one API key.
type fakeAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	monitors []Monitor
	fail     string
	forms    []url.Values
	paths    []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{monitors: []Monitor{testMonitor}}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) url() string { return a.server.URL }

func (a *fakeAPI) set(fn func(a *fakeAPI)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

func (a *fakeAPI) lastForm() url.Values {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.forms) == 0 {
		return nil
	}
	return a.forms[len(a.forms)-1]
}

func (a *fakeAPI) seenPaths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.forms = append(a.forms, r.PostForm)
	a.paths = append(a.paths, r.URL.Path)
	fail := a.fail
	monitors := append([]Monitor(nil), a.monitors...)
	a.mu.Unlock()

	switch {
	case fail == "down", fail == "monitors" && strings.HasSuffix(r.URL.Path, "getMonitors"):
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	case fail == "garbage":
		_, _ = w.Write([]byte("<html>"))
		return
	case fail == "stat":
		writeBody(w, map[string]any{"stat": "fail", "error": map[string]string{"type": "internal_error", "message": "try later"}})
		return
	case fail == "auth" || r.PostForm.Get("api_key") != testAPIKey:
		writeBody(w, map[string]any{"stat": "fail", "error": map[string]string{
			"type":           "invalid_parameter",
			"parameter_name": "api_key",
			"passed_value":   r.PostForm.Get("api_key"),
		}})
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/") {
	case "getMonitors":
		writeBody(w, map[string]any{"stat": "ok", "monitors": monitors})
	case "getAccountDetails":
		writeBody(w, map[string]any{"stat": "ok", "account": testAccount})
	default:
		http.NotFound(w, r)
	}
}

func writeBody(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
