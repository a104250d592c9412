package webostv

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/flow"
	"go.uber.org/zap"
)

const (
	confHost      = "host"
	confName      = "name"
	confClientKey = "client_key"
	confIcon      = "icon"
	confSources   = "sources"

	stepUser       = "user"
	stepPairFailed = "pair_failed"
	stepFinish     = "finish"
	stepImport     = "import"

	progressPair = "pair"
)

var (
	errCannotConnect = errors.New("cannot connect")
	errInvalidAuth   = errors.New("invalid auth")
)

func userSchema() []flow.Field {
	return []flow.Field{
		{Name: confHost, Type: "string", Required: true},
		{Name: confName, Type: "string", Default: config.DefaultWebOSName},
	}
}

type pairTask struct {
	done chan struct{}
	info map[string]any
	err  error
}

// configFlow pairs one TV. The pairing runs in the background while the
// flow shows progress; the task re-enters the flow when it ends.
type configFlow struct {
	plugin *Plugin
	client *Client
	errors map[string]string
	data   map[string]any
	pair   *pairTask
}

func (f *configFlow) Step(ctx context.Context, fc *flow.Context, stepID string, input map[string]any) (flow.Result, error) {
	switch stepID {
	case stepUser:
		return f.stepUser(ctx, fc, input)
	case stepPairFailed:
		return f.stepUser(ctx, fc, nil)
	case stepFinish:
		return f.stepFinish(ctx, fc)
	case stepImport:
		return f.stepImport(ctx, fc, input)
	default:
		return flow.Result{}, fmt.Errorf("unknown step %q", stepID)
	}
}

func (f *configFlow) stepUser(ctx context.Context, fc *flow.Context, input map[string]any) (flow.Result, error) {
	if input == nil {
		// A new form allows a new pairing attempt.
		f.pair = nil
		return flow.ShowForm(stepUser, userSchema(), f.errors), nil
	}

	if f.pair == nil && (f.client == nil || len(f.errors) > 0) {
		host := strings.TrimSpace(stringValue(input, confHost))
		if host == "" {
			return flow.ShowForm(stepUser, userSchema(), map[string]string{confHost: "required"}), nil
		}
		f.client = f.plugin.newClient(host, nil)
	}

	if f.pair == nil {
		f.pair = f.startPair(fc, normalizeInput(input))
		return flow.ShowProgress(stepUser, progressPair), nil
	}

	f.errors = map[string]string{}
	select {
	case <-f.pair.done:
	case <-ctx.Done():
		return flow.Result{}, ctx.Err()
	}

	switch err := f.pair.err; {
	case err == nil:
	case errors.Is(err, errCannotConnect):
		f.errors["base"] = "cannot_connect"
	case errors.Is(err, errInvalidAuth):
		f.errors["base"] = "invalid_auth"
	default:
		f.plugin.logger.Error("unexpected pairing error", zap.Error(err))
		f.errors["base"] = "unknown"
	}
	if len(f.errors) > 0 {
		return flow.ShowProgressDone(stepPairFailed), nil
	}

	f.data = f.pair.info
	return flow.ShowProgressDone(stepFinish), nil
}

func (f *configFlow) startPair(fc *flow.Context, input map[string]any) *pairTask {
	task := &pairTask{done: make(chan struct{})}
	client := f.client
	go func() {
		defer fc.Continue(map[string]any{})
		defer close(task.done)
		task.info, task.err = f.plugin.validate(client, input)
	}()
	return task
}

func (f *configFlow) stepFinish(ctx context.Context, fc *flow.Context) (flow.Result, error) {
	host := stringValue(f.data, confHost)
	fc.SetUniqueID(host)
	f.plugin.rememberKey(ctx, host, stringValue(f.data, confClientKey))
	return flow.CreateEntry(stringValue(f.data, confName), f.data), nil
}

// stepImport brings a TV from static config over, reusing a client key from
// the key file when there is one.
func (f *configFlow) stepImport(ctx context.Context, fc *flow.Context, input map[string]any) (flow.Result, error) {
	host := strings.TrimSpace(stringValue(input, confHost))
	if host == "" {
		return flow.Abort("missing_host"), nil
	}
	p := f.plugin
	if _, err := ConvertClientKeys(ctx, p.cfg.KeyFile, p.logger); err != nil {
		p.logger.Warn("client key migration failed", zap.Error(err))
	}

	store, err := p.openKeyStore()
	if err != nil {
		p.logger.Warn("client key file unavailable", zap.Error(err))
		f.client = p.newClient(host, nil)
	} else {
		f.client = p.newClient(host, store)
		if err := f.client.Init(ctx); err != nil {
			p.logger.Warn("failed to read client key", zap.String("host", host), zap.Error(err))
		}
		_ = store.Close()
	}

	next := map[string]any{confHost: host, confName: stringValue(input, confName)}
	if icon := stringValue(input, confIcon); icon != "" {
		next[confIcon] = icon
	}
	if sources := stringsValue(input, confSources); len(sources) > 0 {
		next[confSources] = sources
	}
	return f.stepUser(ctx, fc, next)
}

// validate connects and disconnects once under the pairing timeout and
// returns the entry data. Closing the plugin cancels it.
func (p *Plugin) validate(client *Client, input map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.pairTimeout)
	defer cancel()

	err := client.Connect(ctx)
	if err == nil {
		err = client.Disconnect()
	}

	var pairErr *PairError
	var cmdErr *CommandError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		p.logger.Info("pairing cancelled", zap.String("host", client.Host()))
		return nil, fmt.Errorf("%w: %v", errCannotConnect, err)
	case errors.As(err, &pairErr):
		p.logger.Warn("connected to LG webOS TV but not paired", zap.String("host", client.Host()))
		return nil, fmt.Errorf("%w: %v", errInvalidAuth, err)
	case errors.As(err, &cmdErr), isTransportError(err):
		p.logger.Error("unable to connect to host", zap.String("host", client.Host()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", errCannotConnect, err)
	default:
		return nil, err
	}

	info := maps.Clone(input)
	info[confClientKey] = client.ClientKey()
	return info, nil
}

func normalizeInput(input map[string]any) map[string]any {
	out := maps.Clone(input)
	out[confHost] = strings.TrimSpace(stringValue(input, confHost))
	if stringValue(input, confName) == "" {
		out[confName] = config.DefaultWebOSName
	}
	return out
}

func stringValue(data map[string]any, key string) string {
	value, _ := data[key].(string)
	return value
}

func stringsValue(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
