package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_NoParams(t *testing.T) {
	assert.Equal(t, "listTags", Key("listTags", nil))
	assert.Equal(t, "listTags", Key("listTags", map[string]any{}))
}

func TestKey_ParameterOrderIndependent(t *testing.T) {
	a := Key("searchImages", map[string]any{
		"query":    "nginx",
		"page":     1,
		"pageSize": 25,
	})
	b := Key("searchImages", map[string]any{
		"pageSize": 25,
		"query":    "nginx",
		"page":     1,
	})

	assert.Equal(t, a, b)
}

func TestKey_DistinguishesValues(t *testing.T) {
	a := Key("getTag", map[string]any{"namespace": "library", "repository": "nginx", "tag": "latest"})
	b := Key("getTag", map[string]any{"namespace": "library", "repository": "nginx", "tag": "alpine"})

	assert.NotEqual(t, a, b)
}

func TestKey_DistinguishesOperations(t *testing.T) {
	params := map[string]any{"namespace": "library", "repository": "nginx"}

	assert.NotEqual(t, Key("getRepository", params), Key("getStats", params))
}

func TestKey_NonStringValues(t *testing.T) {
	key := Key("searchImages", map[string]any{"page": 2, "official": true})

	assert.Equal(t, "searchImages:official=true:page=2", key)
}
