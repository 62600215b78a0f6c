package hub_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/hubgate/hubgate/internal/hub"
	"github.com/hubgate/hubgate/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryToken_PasswordForm(t *testing.T) {
	authServer := testhelpers.SetupMockAuthServer(t)

	c := hub.New(testHubConfig(nil, authServer, nil, true))

	token, err := c.RegistryToken(context.Background(), hub.PullScope("library", "nginx"))

	require.NoError(t, err)
	assert.Equal(t, authServer.Token, token)
	assert.Equal(t, 1, authServer.ExchangeCount)
}

func TestRegistryToken_FallsBackToBearerForm(t *testing.T) {
	authServer := testhelpers.SetupMockAuthServer(t)
	authServer.AcceptPassword = false

	c := hub.New(testHubConfig(nil, authServer, nil, true))

	token, err := c.RegistryToken(context.Background(), hub.PullScope("library", "nginx"))

	require.NoError(t, err)
	assert.Equal(t, authServer.Token, token)
	assert.Equal(t, 2, authServer.ExchangeCount, "password form probed first, then bearer form")
}

func TestRegistryToken_BothFormsRejected(t *testing.T) {
	authServer := testhelpers.SetupMockAuthServer(t)
	authServer.AcceptPassword = false
	authServer.AcceptBearer = false

	c := hub.New(testHubConfig(nil, authServer, nil, true))

	_, err := c.RegistryToken(context.Background(), hub.PullScope("library", "nginx"))

	assert.True(t, hub.IsAuthFailed(err))
	assert.NotContains(t, err.Error(), "test-access-token")
}

func TestRegistryToken_NoCredential(t *testing.T) {
	c := hub.New(testHubConfig(nil, nil, nil, false))

	_, err := c.RegistryToken(context.Background(), hub.PullScope("library", "nginx"))

	assert.True(t, hub.IsAuthFailed(err))
}

func TestSessionToken_Success(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	token, err := c.SessionToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, hubServer.SessionToken, token)
	assert.Equal(t, 1, hubServer.LoginCount)
}

func TestSessionToken_RejectedLogin(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.LoginStatusCode = http.StatusUnauthorized

	c := hub.New(testHubConfig(hubServer, nil, nil, true))

	_, err := c.SessionToken(context.Background())

	assert.True(t, hub.IsAuthFailed(err))
}
