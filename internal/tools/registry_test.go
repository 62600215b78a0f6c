package tools_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/hubgate/hubgate/internal/cache"
	"github.com/hubgate/hubgate/internal/config"
	"github.com/hubgate/hubgate/internal/hub"
	"github.com/hubgate/hubgate/internal/testhelpers"
	"github.com/hubgate/hubgate/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, hubServer *testhelpers.MockHubServer, authServer *testhelpers.MockAuthServer, registryServer *testhelpers.MockRegistryServer, credential bool) (*tools.Registry, *cache.Cache) {
	t.Helper()

	cfg := config.HubConfig{AuthService: "registry.docker.io"}
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

	store := cache.New(config.CacheConfig{
		Capacity:             100,
		DefaultTTLSeconds:    300,
		SweepIntervalSeconds: 60,
	})
	return tools.NewRegistry(hub.New(cfg), store), store
}

func TestList_DeclaresFullRoster(t *testing.T) {
	r, _ := newTestRegistry(t, nil, nil, nil, false)

	list := r.List()

	require.Len(t, list, 16)

	names := make(map[string]bool, len(list))
	for _, tool := range list {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description, "tool %s needs a description", tool.Name)
	}
	for _, expected := range []string{
		"search_images", "get_image_details", "list_tags", "get_tag_details",
		"get_stats", "list_repositories", "delete_tag",
		"get_manifest", "analyze_layers", "compare_images", "get_dockerfile",
		"get_vulnerabilities", "get_image_history", "track_base_image",
		"estimate_pull_size", "cache",
	} {
		assert.True(t, names[expected], "missing tool %s", expected)
	}
}

func TestInvoke_UnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t, nil, nil, nil, false)

	_, err := r.Invoke(context.Background(), "no_such_tool", tools.Params{})

	var unknown *tools.ErrUnknownTool
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no_such_tool", unknown.Name)
}

func TestGetImageDetails_SecondCallServedFromCache(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.Responses["/v2/repositories/library/nginx/"] = map[string]any{
		"name":        "nginx",
		"namespace":   "library",
		"description": "Official build of Nginx.",
		"star_count":  20000,
		"pull_count":  1000000000,
	}

	r, _ := newTestRegistry(t, hubServer, nil, nil, false)
	params := tools.Params{"namespace": "library", "repository": "nginx"}

	first, err := r.Invoke(context.Background(), "get_image_details", params)
	require.NoError(t, err)
	require.False(t, first.IsError, first.Summary)
	assert.Contains(t, first.Summary, "library/nginx")

	second, err := r.Invoke(context.Background(), "get_image_details", params)
	require.NoError(t, err)

	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, 1, hubServer.RequestCount, "second invocation must not reach upstream")
}

func TestListTags_RejectedCredentialKeepsDeclaredShape(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.Responses["/v2/repositories/acme/secret/tags/"] = map[string]any{"count": 0}
	hubServer.PrivatePaths["/v2/repositories/acme/secret/tags/"] = true
	hubServer.LoginStatusCode = http.StatusUnauthorized

	r, _ := newTestRegistry(t, hubServer, nil, nil, true)

	result, err := r.Invoke(context.Background(), "list_tags",
		tools.Params{"namespace": "acme", "repository": "secret"})

	require.NoError(t, err, "auth failures fold into the envelope")
	assert.True(t, result.IsError)
	assert.Contains(t, result.Summary, "acme/secret")
	assert.NotContains(t, result.Summary, "test-access-token")

	page, ok := result.Payload.(hub.TagPage)
	require.True(t, ok, "failure payload keeps the declared shape")
	assert.Empty(t, page.Tags)
	assert.Empty(t, page.Names)
}

func TestCompareImages_MissingSecondImageReturnsSentinel(t *testing.T) {
	authServer := testhelpers.SetupMockAuthServer(t)
	registryServer := testhelpers.SetupMockRegistryServer(t)
	registryServer.Manifests["/v2/library/nginx/manifests/latest"] = map[string]any{
		"schemaVersion": 2,
		"mediaType":     "application/vnd.oci.image.manifest.v1+json",
		"config": map[string]any{
			"mediaType": "application/vnd.oci.image.config.v1+json",
			"digest":    "sha256:cfg",
			"size":      7000,
		},
		"layers": []map[string]any{
			{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": "sha256:l1", "size": 100},
		},
	}

	r, _ := newTestRegistry(t, nil, authServer, registryServer, true)

	result, err := r.Invoke(context.Background(), "compare_images", tools.Params{
		"firstRepository":  "nginx",
		"secondRepository": "missing",
		"secondTag":        "gone",
	})

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Summary, "library/missing:gone")

	cmp, ok := result.Payload.(hub.ImageComparison)
	require.True(t, ok)
	assert.Zero(t, cmp.SharedLayers)
}

func TestDeleteTag_InvalidatesCachedRepositoryEntries(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.Responses["/v2/repositories/acme/app/tags/"] = map[string]any{
		"count": 1,
		"results": []map[string]any{
			{"name": "v1", "full_size": 1000},
		},
	}
	hubServer.Responses["/v2/repositories/acme/app/tags/v1/"] = map[string]any{"name": "v1"}

	r, _ := newTestRegistry(t, hubServer, nil, nil, true)

	listParams := tools.Params{"namespace": "acme", "repository": "app"}
	_, err := r.Invoke(context.Background(), "list_tags", listParams)
	require.NoError(t, err)
	_, err = r.Invoke(context.Background(), "list_tags", listParams)
	require.NoError(t, err)
	require.Equal(t, 1, hubServer.RequestCount, "listing is cached before the delete")

	result, err := r.Invoke(context.Background(), "delete_tag",
		tools.Params{"namespace": "acme", "repository": "app", "tag": "v1"})
	require.NoError(t, err)
	require.False(t, result.IsError, result.Summary)

	_, err = r.Invoke(context.Background(), "list_tags", listParams)
	require.NoError(t, err)
	assert.Equal(t, 3, hubServer.RequestCount, "delete evicts the cached listing")
}

func TestPreloadImages_WarmsCacheAndToleratesFailures(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.Responses["/v2/repositories/library/nginx/"] = map[string]any{
		"name": "nginx", "namespace": "library",
	}

	r, store := newTestRegistry(t, hubServer, nil, nil, false)

	loaded := r.PreloadImages(context.Background(),
		[]string{"nginx", "library/missing:latest", ":::not-a-ref"})

	assert.Equal(t, 1, loaded, "only the resolvable image loads")
	assert.Equal(t, 1, store.Len())

	fetchesAfterPreload := hubServer.RequestCount

	params := tools.Params{"namespace": "library", "repository": "nginx"}
	result, err := r.Invoke(context.Background(), "get_image_details", params)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, fetchesAfterPreload, hubServer.RequestCount,
		"the preloaded entry serves the invocation")
}

func TestCacheTool_Stats(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.Responses["/v2/repositories/library/redis/"] = map[string]any{
		"name": "redis", "namespace": "library",
	}

	r, _ := newTestRegistry(t, hubServer, nil, nil, false)
	params := tools.Params{"repository": "redis"}
	_, err := r.Invoke(context.Background(), "get_image_details", params)
	require.NoError(t, err)
	_, err = r.Invoke(context.Background(), "get_image_details", params)
	require.NoError(t, err)

	result, err := r.Invoke(context.Background(), "cache", tools.Params{"action": "stats"})

	require.NoError(t, err)
	require.False(t, result.IsError)
	snap, ok := result.Payload.(cache.Snapshot)
	require.True(t, ok)
	assert.Equal(t, uint64(2), snap.Requests)
	assert.Equal(t, uint64(1), snap.Hits)
	assert.Equal(t, 1, snap.Entries)
}

func TestCacheTool_Info(t *testing.T) {
	r, _ := newTestRegistry(t, nil, nil, nil, false)

	result, err := r.Invoke(context.Background(), "cache", tools.Params{"action": "info"})

	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, result.Summary, "100")
}

func TestCacheTool_Clear(t *testing.T) {
	hubServer := testhelpers.SetupMockHubServer(t)
	hubServer.Responses["/v2/repositories/library/redis/"] = map[string]any{
		"name": "redis", "namespace": "library",
	}

	r, store := newTestRegistry(t, hubServer, nil, nil, false)
	_, err := r.Invoke(context.Background(), "get_image_details", tools.Params{"repository": "redis"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	result, err := r.Invoke(context.Background(), "cache", tools.Params{"action": "clear"})

	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, 0, store.Len())
}

func TestCacheTool_UnknownAction(t *testing.T) {
	r, _ := newTestRegistry(t, nil, nil, nil, false)

	result, err := r.Invoke(context.Background(), "cache", tools.Params{"action": "explode"})

	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchImages_MissingQueryFailsInEnvelope(t *testing.T) {
	r, _ := newTestRegistry(t, nil, nil, nil, false)

	result, err := r.Invoke(context.Background(), "search_images", tools.Params{})

	require.NoError(t, err)
	assert.True(t, result.IsError)
	page, ok := result.Payload.(hub.RepositoryPage)
	require.True(t, ok)
	assert.Empty(t, page.Results)
}
