package tools

import (
	"context"
	"fmt"

	"github.com/hubgate/hubgate/internal/cache"
	"github.com/hubgate/hubgate/internal/hub"
	"github.com/rs/zerolog/log"
)

func (r *Registry) registerImageTools() {
	r.register(&Tool{
		Name:        "search_images",
		Description: "Search Docker Hub for repositories matching a query.",
		Params: []ParamSpec{
			{Name: "query", Type: "string", Description: "Search terms", Required: true},
			{Name: "page", Type: "integer", Description: "Result page, starting at 1"},
			{Name: "pageSize", Type: "integer", Description: "Results per page, max 100"},
		},
		handler: r.searchImages,
	})

	r.register(&Tool{
		Name:        "get_image_details",
		Description: "Fetch the metadata document for a repository.",
		Params:      repoParamSpecs,
		handler:     r.getImageDetails,
	})

	r.register(&Tool{
		Name:        "list_tags",
		Description: "List the tags of a repository, paged.",
		Params: append(repoParamSpecs[:2:2],
			ParamSpec{Name: "page", Type: "integer", Description: "Result page, starting at 1"},
			ParamSpec{Name: "pageSize", Type: "integer", Description: "Results per page, max 100"},
		),
		handler: r.listTags,
	})

	r.register(&Tool{
		Name:        "get_tag_details",
		Description: "Fetch the metadata document for one tag.",
		Params:      imageParamSpecs,
		handler:     r.getTagDetails,
	})

	r.register(&Tool{
		Name:        "get_stats",
		Description: "Fetch the pull and star counters of a repository.",
		Params:      repoParamSpecs,
		handler:     r.getStats,
	})

	r.register(&Tool{
		Name:        "list_repositories",
		Description: "List the repositories owned by a user or organization.",
		Params: []ParamSpec{
			{Name: "username", Type: "string", Description: "Account name", Required: true},
			{Name: "page", Type: "integer", Description: "Result page, starting at 1"},
			{Name: "pageSize", Type: "integer", Description: "Results per page, max 100"},
		},
		handler: r.listRepositories,
	})

	r.register(&Tool{
		Name:        "delete_tag",
		Description: "Delete a tag from a repository. Requires a configured credential.",
		Params:      imageParamSpecs,
		handler:     r.deleteTag,
	})
}

func (r *Registry) searchImages(ctx context.Context, p Params) Result {
	query := p.String("query")
	if query == "" {
		return failure("search", hub.RepositoryPage{Results: []hub.RepositorySummary{}},
			fmt.Errorf("query is required"))
	}
	page := p.Int("page", 1)
	pageSize := p.Int("pageSize", 25)

	params := map[string]any{"query": query, "page": page, "pageSize": pageSize}
	value, err := r.cached(ctx, "searchImages", params, cache.SearchResults,
		func(ctx context.Context) (any, error) {
			return r.hub.SearchImages(ctx, query, page, pageSize)
		})
	if err != nil {
		return failure("search", hub.RepositoryPage{Results: []hub.RepositorySummary{}}, err)
	}

	result := value.(hub.RepositoryPage)
	return success(
		fmt.Sprintf("Found %d repositories for %q (page %d of results)", result.Total, query, result.Page),
		result,
	)
}

func (r *Registry) getImageDetails(ctx context.Context, p Params) Result {
	namespace, repository := repoParams(p)
	if repository == "" {
		return failure("get image details", nil, fmt.Errorf("repository is required"))
	}

	params := map[string]any{"namespace": namespace, "repository": repository}
	value, err := r.cached(ctx, "getImageDetails", params, cache.ImageMetadata,
		func(ctx context.Context) (any, error) {
			return r.hub.GetRepository(ctx, namespace, repository)
		})
	if err != nil {
		return failure(fmt.Sprintf("get image details for %s/%s", namespace, repository), nil, err)
	}

	repo := value.(hub.Repository)
	return success(
		fmt.Sprintf("%s/%s: %s (%d stars, %d pulls)",
			namespace, repository, repo.Description, repo.StarCount, repo.PullCount),
		repo,
	)
}

func (r *Registry) listTags(ctx context.Context, p Params) Result {
	namespace, repository := repoParams(p)
	if repository == "" {
		return failure("list tags", hub.TagPage{Tags: []hub.Tag{}, Names: []string{}},
			fmt.Errorf("repository is required"))
	}
	page := p.Int("page", 1)
	pageSize := p.Int("pageSize", 25)

	params := map[string]any{
		"namespace": namespace, "repository": repository,
		"page": page, "pageSize": pageSize,
	}
	value, err := r.cached(ctx, "listTags", params, cache.Tags,
		func(ctx context.Context) (any, error) {
			return r.hub.ListTags(ctx, namespace, repository, page, pageSize)
		})
	if err != nil {
		return failure(fmt.Sprintf("list tags for %s/%s", namespace, repository),
			hub.TagPage{Tags: []hub.Tag{}, Names: []string{}}, err)
	}

	result := value.(hub.TagPage)
	return success(
		fmt.Sprintf("%s/%s has %d tags (showing page %d)", namespace, repository, result.Total, result.Page),
		result,
	)
}

func (r *Registry) getTagDetails(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("get tag details", nil, err)
	}

	params := map[string]any{
		"namespace": ref.Namespace, "repository": ref.Repository, "tag": ref.Tag,
	}
	value, err := r.cached(ctx, "getTagDetails", params, cache.Tags,
		func(ctx context.Context) (any, error) {
			return r.hub.GetTag(ctx, ref.Namespace, ref.Repository, ref.Tag)
		})
	if err != nil {
		return failure(fmt.Sprintf("get tag details for %s", ref), nil, err)
	}

	tag := value.(hub.Tag)
	return success(
		fmt.Sprintf("%s: %d bytes across %d platform variants", ref, tag.FullSize, len(tag.Images)),
		tag,
	)
}

func (r *Registry) getStats(ctx context.Context, p Params) Result {
	namespace, repository := repoParams(p)
	if repository == "" {
		return failure("get stats", hub.RepositoryStats{}, fmt.Errorf("repository is required"))
	}

	params := map[string]any{"namespace": namespace, "repository": repository}
	value, err := r.cached(ctx, "getStats", params, cache.Stats,
		func(ctx context.Context) (any, error) {
			return r.hub.GetStats(ctx, namespace, repository)
		})
	if err != nil {
		return failure(fmt.Sprintf("get stats for %s/%s", namespace, repository),
			hub.RepositoryStats{}, err)
	}

	stats := value.(hub.RepositoryStats)
	return success(
		fmt.Sprintf("%s/%s: %d pulls, %d stars", namespace, repository, stats.PullCount, stats.StarCount),
		stats,
	)
}

func (r *Registry) listRepositories(ctx context.Context, p Params) Result {
	username := p.String("username")
	if username == "" {
		return failure("list repositories", hub.RepositoryPage{Results: []hub.RepositorySummary{}},
			fmt.Errorf("username is required"))
	}
	page := p.Int("page", 1)
	pageSize := p.Int("pageSize", 25)

	params := map[string]any{"username": username, "page": page, "pageSize": pageSize}
	value, err := r.cached(ctx, "listRepositories", params, cache.SearchResults,
		func(ctx context.Context) (any, error) {
			return r.hub.ListRepositories(ctx, username, page, pageSize)
		})
	if err != nil {
		return failure(fmt.Sprintf("list repositories for %s", username),
			hub.RepositoryPage{Results: []hub.RepositorySummary{}}, err)
	}

	result := value.(hub.RepositoryPage)
	return success(
		fmt.Sprintf("%s owns %d repositories (showing page %d)", username, result.Total, result.Page),
		result,
	)
}

// PreloadImages warms the cache with the metadata of the given image
// references. Unparseable references are skipped with a warning; fetch
// failures are tolerated per entry by the cache. Returns the number of
// entries loaded.
func (r *Registry) PreloadImages(ctx context.Context, images []string) int {
	entries := make([]cache.PreloadEntry, 0, len(images))
	for _, image := range images {
		ref, err := hub.ParseImageRef(image)
		if err != nil {
			log.Warn().Str("image", image).Err(err).
				Msg("skipping unparseable preload reference")
			continue
		}

		namespace, repository := ref.Namespace, ref.Repository
		entries = append(entries, cache.PreloadEntry{
			Key: cache.Key("getImageDetails", map[string]any{
				"namespace": namespace, "repository": repository,
			}),
			Strategy: cache.ImageMetadata,
			Fetch: func(ctx context.Context) (any, error) {
				return r.hub.GetRepository(ctx, namespace, repository)
			},
		})
	}

	return r.store.Preload(ctx, entries)
}

// deleteTagResult is the declared shape of the delete_tag payload.
type deleteTagResult struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

func (r *Registry) deleteTag(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("delete tag", deleteTagResult{Message: "invalid reference"}, err)
	}

	if err := r.hub.DeleteTag(ctx, ref.Namespace, ref.Repository, ref.Tag); err != nil {
		return failure(fmt.Sprintf("delete tag %s", ref),
			deleteTagResult{Message: "tag was not deleted"}, err)
	}

	// drop cached listings and details that still contain the tag
	repoPrefix := fmt.Sprintf("*:namespace=%s*repository=%s*", ref.Namespace, ref.Repository)
	r.store.InvalidatePattern(ctx, repoPrefix)

	return success(
		fmt.Sprintf("Deleted tag %s", ref),
		deleteTagResult{Deleted: true, Message: fmt.Sprintf("tag %s deleted", ref)},
	)
}
