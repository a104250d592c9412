package uptimerobot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joshp123/gohass/internal/flow"
	"go.uber.org/zap"
)

const (
	confAPIKey = "api_key"
	stepUser   = "user"
)

func userSchema() []flow.Field {
	return []flow.Field{{Name: confAPIKey, Type: "string", Required: true}}
}

// configFlow adds one Uptime Robot account, identified by its user id.
type configFlow struct {
	plugin *Plugin
}

func (f *configFlow) Step(ctx context.Context, fc *flow.Context, stepID string, input map[string]any) (flow.Result, error) {
	if stepID != stepUser {
		return flow.Result{}, fmt.Errorf("unknown step %q", stepID)
	}
	if input == nil {
		return flow.ShowForm(stepUser, userSchema(), nil), nil
	}

	apiKey, _ := input[confAPIKey].(string)
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return flow.ShowForm(stepUser, userSchema(), map[string]string{confAPIKey: "required"}), nil
	}

	account, err := f.plugin.newClient(apiKey).Account(ctx)
	if err != nil {
		return flow.ShowForm(stepUser, userSchema(), map[string]string{"base": f.errorKey(err)}), nil
	}

	fc.SetUniqueID(account.Key())
	if fc.Configured() {
		return flow.Abort("already_configured"), nil
	}
	return flow.CreateEntry(account.Email, map[string]any{confAPIKey: apiKey}), nil
}

func (f *configFlow) errorKey(err error) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrAuthentication):
		return "invalid_api_key"
	case errors.Is(err, ErrConnection):
		return "cannot_connect"
	case errors.As(err, &apiErr):
		f.plugin.logger.Error("account lookup failed", zap.Error(err))
		return "unknown"
	default:
		f.plugin.logger.Error("unexpected error validating api key", zap.Error(err))
		return "unknown"
	}
}
