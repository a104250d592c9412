package uptimerobot

import (
	"context"
	"errors"
	"testing"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClientPostsForm(t *testing.T) {
	api := newFakeAPI(t)
	client := NewClient(api.url()+"/", testAPIKey, nil)
	ctx := context.Background()

	monitors, err := client.Monitors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Monitor{testMonitor}, monitors)
	assert.Equal(t, testAPIKey, api.lastForm().Get("api_key"))
	assert.Equal(t, "json", api.lastForm().Get("format"))

	account, err := client.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, testAccount, account)
	assert.Equal(t, "1234567890", account.Key())
	assert.Equal(t, []string{"/getMonitors", "/getAccountDetails"}, api.seenPaths())

	api.set(func(a *fakeAPI) { a.monitors = nil })
	monitors, err = client.Monitors(ctx)
	require.NoError(t, err)
	assert.Empty(t, monitors)
}

func TestClientErrors(t *testing.T) {
	api := newFakeAPI(t)
	ctx := context.Background()

	_, err := NewClient(api.url(), "wrong", nil).Monitors(ctx)
	require.ErrorIs(t, err, ErrAuthentication)

	client := NewClient(api.url(), testAPIKey, nil)

	api.set(func(a *fakeAPI) { a.fail = "down" })
	_, err = client.Monitors(ctx)
	require.ErrorIs(t, err, ErrConnection)

	api.set(func(a *fakeAPI) { a.fail = "stat" })
	_, err = client.Account(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "internal_error", apiErr.Type)
	assert.Equal(t, "getAccountDetails", apiErr.Method)
	assert.NotErrorIs(t, err, ErrAuthentication)

	api.set(func(a *fakeAPI) { a.fail = "garbage" })
	_, err = client.Monitors(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConnection) || errors.As(err, &apiErr), "a bad body is neither")

	_, err = NewClient("http://127.0.0.1:1", testAPIKey, nil).Monitors(ctx)
	require.ErrorIs(t, err, ErrConnection)
}

func TestClientIsRateLimited(t *testing.T) {
	api := newFakeAPI(t)
	httpClient := NewHTTPClient(&config.UptimeRobotConfig{RequestsPerMinute: 1})
	client := NewClient(api.url(), testAPIKey, httpClient)
	ctx := context.Background()

	_, err := client.Monitors(ctx)
	require.NoError(t, err)

	_, err = client.Monitors(ctx)
	require.ErrorIs(t, err, ErrConnection)
	var limited rate.RateLimitError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, "uptimerobot", limited.Provider)
	assert.Len(t, api.seenPaths(), 1, "the blocked call never reaches the API")
}
