package hub_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hubgate/hubgate/internal/cache"
	"github.com/hubgate/hubgate/internal/config"
	"github.com/hubgate/hubgate/internal/hub"
	"github.com/hubgate/hubgate/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHubConfig(hubServer *testhelpers.MockHubServer, authServer *testhelpers.MockAuthServer, registryServer *testhelpers.MockRegistryServer, credential bool) config.HubConfig {
	cfg := config.HubConfig{
		AuthService: "registry.docker.io",
	}
	if hubServer != nil {
		cfg.APIURL = hubServer.Server.URL
	}
	if authServer != nil {
		cfg.AuthURL = authServer.Server.URL
	}
	if registryServer != nil {
		cfg.RegistryURL = registryServer.Server.URL
	}
	if credential {
		cfg.Username = "testuser"
		cfg.AccessToken = "test-access-token"
	}
	return cfg
}

func TestExecute_SuccessSkipsExchange(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	authServer := testhelpers.SetupMockAuthServer(t)

	c := hub.New(testHubConfig(hubServer, authServer, nil, true))

	calls := 0
	result, err := hub.Execute(context.Background(), c, "library/nginx", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			calls++
			assert.Empty(t, token)
			return "public-result", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "public-result", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, hubServer.LoginCount, "exchanger must not run when the anonymous attempt succeeds")
	assert.Equal(t, 0, authServer.ExchangeCount)
}

func TestExecute_EscalatesOn401(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	calls := 0
	result, err := hub.Execute(context.Background(), c, "private/repo", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			calls++
			if token == "" {
				return "", &hub.StatusError{Code: http.StatusUnauthorized, Message: "authentication required"}
			}
			assert.Equal(t, hubServer.SessionToken, token)
			return "private-result", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "private-result", result)
	assert.Equal(t, 2, calls, "one anonymous attempt, one authenticated retry")
	assert.Equal(t, 1, hubServer.LoginCount, "exchanger runs exactly once")
}

func TestExecute_EscalatesOn404(t *testing.T) {
	// Hub reports private resources as 404 to anonymous callers, so 404
	// with a configured credential escalates.
	hubServer := testhelpers.SetupMockHubServer(t)

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	result, err := hub.Execute(context.Background(), c, "private/repo", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			if token == "" {
				return "", &hub.StatusError{Code: http.StatusNotFound, Message: "object not found"}
			}
			return "private-result", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "private-result", result)
	assert.Equal(t, 1, hubServer.LoginCount)
}

func TestExecute_NoCredentialPropagatesWithoutExchange(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)

	c := hub.New(testHubConfig(hubServer, nil, nil, false))

	_, err := hub.Execute(context.Background(), c, "private/repo", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			return "", &hub.StatusError{Code: http.StatusUnauthorized, Message: "authentication required"}
		})

	var se *hub.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, 0, hubServer.LoginCount, "no exchange may be attempted without a credential")
}

func TestExecute_NonAuthFailurePassesThrough(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	calls := 0
	_, err := hub.Execute(context.Background(), c, "library/nginx", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			calls++
			return "", &hub.StatusError{Code: http.StatusBadGateway, Message: "upstream exploded"}
		})

	var se *hub.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, 1, calls, "5xx must not be retried")
	assert.Equal(t, 0, hubServer.LoginCount)
}

func TestExecute_FailedExchangeSurfacesAuthFailed(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.LoginStatusCode = http.StatusUnauthorized

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	_, err := hub.Execute(context.Background(), c, "private/repo", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			return "", &hub.StatusError{Code: http.StatusUnauthorized}
		})

	assert.True(t, hub.IsAuthFailed(err))
	assert.NotContains(t, err.Error(), "test-access-token", "credential must never leak into errors")
}

func TestExecute_FailedRetrySurfacesAuthFailed(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	calls := 0
	_, err := hub.Execute(context.Background(), c, "private/repo", hub.SessionAuth,
		func(ctx context.Context, token string) (string, error) {
			calls++
			return "", &hub.StatusError{Code: http.StatusUnauthorized, Message: "still not allowed"}
		})

	assert.True(t, hub.IsAuthFailed(err))
	assert.Equal(t, 2, calls, "no fallback beyond the single authenticated retry")
}

func TestExecute_RegistryKindUsesScopedToken(t *testing.T) {
	authServer := testhelpers.SetupMockAuthServer(t)

	c := hub.New(testHubConfig(nil, authServer, nil, true))

	result, err := hub.Execute(context.Background(), c, hub.PullScope("library", "nginx"), hub.RegistryAuth,
		func(ctx context.Context, token string) (string, error) {
			if token == "" {
				return "", &hub.StatusError{Code: http.StatusUnauthorized}
			}
			return token, nil
		})

	require.NoError(t, err)
	assert.Equal(t, authServer.Token, result)
	assert.Equal(t, 1, authServer.ExchangeCount)
	assert.Equal(t, "repository:library/nginx:pull", authServer.LastScope)
}

func TestExecute_TokenCacheSkipsRepeatExchange(t *testing.T) {
	authServer := testhelpers.SetupMockAuthServer(t)

	tokens := cache.NewTokenMemory[string](time.Minute, 100)
	c := hub.New(testHubConfig(nil, authServer, nil, true), hub.WithTokenCache(tokens))

	scoped := func(ctx context.Context, token string) (string, error) {
		if token == "" {
			return "", &hub.StatusError{Code: http.StatusUnauthorized}
		}
		return token, nil
	}

	_, err := hub.Execute(context.Background(), c, hub.PullScope("library", "nginx"), hub.RegistryAuth, scoped)
	require.NoError(t, err)
	_, err = hub.Execute(context.Background(), c, hub.PullScope("library", "nginx"), hub.RegistryAuth, scoped)
	require.NoError(t, err)

	assert.Equal(t, 1, authServer.ExchangeCount, "second escalation must reuse the cached token")
}
