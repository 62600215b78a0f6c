package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RepositorySummary is one row of a search or listing result.
type RepositorySummary struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Description string `json:"description"`
	StarCount   int64  `json:"starCount"`
	PullCount   int64  `json:"pullCount"`
	IsOfficial  bool   `json:"isOfficial"`
}

// RepositoryPage is a paged list of repository summaries.
type RepositoryPage struct {
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
	Results  []RepositorySummary `json:"results"`
}

// Repository is the metadata document for one repository.
type Repository struct {
	Name            string    `json:"name"`
	Namespace       string    `json:"namespace"`
	Description     string    `json:"description"`
	FullDescription string    `json:"fullDescription"`
	StarCount       int64     `json:"starCount"`
	PullCount       int64     `json:"pullCount"`
	LastUpdated     time.Time `json:"lastUpdated"`
	IsPrivate       bool      `json:"isPrivate"`
	Status          string    `json:"status"`
}

// RepositoryStats carries the counters of a repository.
type RepositoryStats struct {
	PullCount int64 `json:"pullCount"`
	StarCount int64 `json:"starCount"`
}

// TagImage is one platform variant of a tag.
type TagImage struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Size         int64  `json:"size"`
	Digest       string `json:"digest"`
}

// Tag is the metadata document for one tag.
type Tag struct {
	Name        string     `json:"name"`
	FullSize    int64      `json:"fullSize"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Digest      string     `json:"digest"`
	Images      []TagImage `json:"images"`
}

// TagPage is a paged list of tag names with their metadata.
type TagPage struct {
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
	Tags     []Tag    `json:"tags"`
	Names    []string `json:"names"`
}

// wire shapes of the metadata API

type searchResponse struct {
	Count   int64 `json:"count"`
	Results []struct {
		RepoName         string `json:"repo_name"`
		ShortDescription string `json:"short_description"`
		StarCount        int64  `json:"star_count"`
		PullCount        int64  `json:"pull_count"`
		IsOfficial       bool   `json:"is_official"`
	} `json:"results"`
}

type repositoryResponse struct {
	Name            string `json:"name"`
	Namespace       string `json:"namespace"`
	Description     string `json:"description"`
	FullDescription string `json:"full_description"`
	StarCount       int64  `json:"star_count"`
	PullCount       int64  `json:"pull_count"`
	LastUpdated     string `json:"last_updated"`
	IsPrivate       bool   `json:"is_private"`
	Status          string `json:"status_description"`
}

type tagResponse struct {
	Name        string `json:"name"`
	FullSize    int64  `json:"full_size"`
	LastUpdated string `json:"last_updated"`
	Digest      string `json:"digest"`
	Images      []struct {
		Architecture string `json:"architecture"`
		OS           string `json:"os"`
		Size         int64  `json:"size"`
		Digest       string `json:"digest"`
	} `json:"images"`
}

type tagListResponse struct {
	Count   int64         `json:"count"`
	Results []tagResponse `json:"results"`
}

type repositoryListResponse struct {
	Count   int64                `json:"count"`
	Results []repositoryResponse `json:"results"`
}

// SearchImages queries the Hub search index. Search is public; no
// escalation path is needed.
func (c *Client) SearchImages(ctx context.Context, query string, page, pageSize int) (RepositoryPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	searchURL := fmt.Sprintf("%s/v2/search/repositories/?query=%s&page=%d&page_size=%d",
		c.apiURL, url.QueryEscape(query), page, pageSize)

	var body searchResponse
	if err := c.getJSON(ctx, searchURL, "", "", &body); err != nil {
		return RepositoryPage{}, err
	}

	result := RepositoryPage{
		Total:    body.Count,
		Page:     page,
		PageSize: pageSize,
		Results:  make([]RepositorySummary, 0, len(body.Results)),
	}
	for _, r := range body.Results {
		namespace, name := splitRepoName(r.RepoName)
		result.Results = append(result.Results, RepositorySummary{
			Name:        name,
			Namespace:   namespace,
			Description: r.ShortDescription,
			StarCount:   r.StarCount,
			PullCount:   r.PullCount,
			IsOfficial:  r.IsOfficial,
		})
	}

	return result, nil
}

// GetRepository fetches the metadata document for namespace/repository,
// escalating to a session token for private repositories.
func (c *Client) GetRepository(ctx context.Context, namespace, repository string) (Repository, error) {
	repoURL := fmt.Sprintf("%s/v2/repositories/%s/%s/", c.apiURL, namespace, repository)

	return Execute(ctx, c, namespace+"/"+repository, SessionAuth,
		func(ctx context.Context, token string) (Repository, error) {
			var body repositoryResponse
			if err := c.getJSON(ctx, repoURL, token, "", &body); err != nil {
				return Repository{}, err
			}

			return Repository{
				Name:            body.Name,
				Namespace:       body.Namespace,
				Description:     body.Description,
				FullDescription: body.FullDescription,
				StarCount:       body.StarCount,
				PullCount:       body.PullCount,
				LastUpdated:     parseTime(body.LastUpdated),
				IsPrivate:       body.IsPrivate,
				Status:          body.Status,
			}, nil
		})
}

// GetStats returns the pull and star counters for a repository.
func (c *Client) GetStats(ctx context.Context, namespace, repository string) (RepositoryStats, error) {
	repo, err := c.GetRepository(ctx, namespace, repository)
	if err != nil {
		return RepositoryStats{}, err
	}

	return RepositoryStats{
		PullCount: repo.PullCount,
		StarCount: repo.StarCount,
	}, nil
}

// ListTags returns one page of tags for a repository.
func (c *Client) ListTags(ctx context.Context, namespace, repository string, page, pageSize int) (TagPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	tagsURL := fmt.Sprintf("%s/v2/repositories/%s/%s/tags/?page=%d&page_size=%d",
		c.apiURL, namespace, repository, page, pageSize)

	return Execute(ctx, c, namespace+"/"+repository, SessionAuth,
		func(ctx context.Context, token string) (TagPage, error) {
			var body tagListResponse
			if err := c.getJSON(ctx, tagsURL, token, "", &body); err != nil {
				return TagPage{}, err
			}

			result := TagPage{
				Total:    body.Count,
				Page:     page,
				PageSize: pageSize,
				Tags:     make([]Tag, 0, len(body.Results)),
				Names:    make([]string, 0, len(body.Results)),
			}
			for _, t := range body.Results {
				result.Tags = append(result.Tags, tagFromResponse(t))
				result.Names = append(result.Names, t.Name)
			}

			return result, nil
		})
}

// GetTag fetches the metadata document for one tag.
func (c *Client) GetTag(ctx context.Context, namespace, repository, tag string) (Tag, error) {
	tagURL := fmt.Sprintf("%s/v2/repositories/%s/%s/tags/%s/",
		c.apiURL, namespace, repository, url.PathEscape(tag))

	return Execute(ctx, c, namespace+"/"+repository, SessionAuth,
		func(ctx context.Context, token string) (Tag, error) {
			var body tagResponse
			if err := c.getJSON(ctx, tagURL, token, "", &body); err != nil {
				return Tag{}, err
			}
			return tagFromResponse(body), nil
		})
}

// ListRepositories returns one page of the repositories owned by username.
// Private repositories appear only when the configured credential can see
// them.
func (c *Client) ListRepositories(ctx context.Context, username string, page, pageSize int) (RepositoryPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	listURL := fmt.Sprintf("%s/v2/repositories/%s/?page=%d&page_size=%d",
		c.apiURL, username, page, pageSize)

	return Execute(ctx, c, username, SessionAuth,
		func(ctx context.Context, token string) (RepositoryPage, error) {
			var body repositoryListResponse
			if err := c.getJSON(ctx, listURL, token, "", &body); err != nil {
				return RepositoryPage{}, err
			}

			result := RepositoryPage{
				Total:    body.Count,
				Page:     page,
				PageSize: pageSize,
				Results:  make([]RepositorySummary, 0, len(body.Results)),
			}
			for _, r := range body.Results {
				result.Results = append(result.Results, RepositorySummary{
					Name:        r.Name,
					Namespace:   r.Namespace,
					Description: r.Description,
					StarCount:   r.StarCount,
					PullCount:   r.PullCount,
				})
			}

			return result, nil
		})
}

// DeleteTag removes a tag from a repository. This always requires the
// session token: the unauthenticated attempt exists only to keep the
// operation on the same escalation path as everything else.
func (c *Client) DeleteTag(ctx context.Context, namespace, repository, tag string) error {
	deleteURL := fmt.Sprintf("%s/v2/repositories/%s/%s/tags/%s/",
		c.apiURL, namespace, repository, url.PathEscape(tag))

	_, err := Execute(ctx, c, namespace+"/"+repository, SessionAuth,
		func(ctx context.Context, token string) (struct{}, error) {
			resp, err := c.do(ctx, http.MethodDelete, deleteURL, token, nil, "")
			if err != nil {
				return struct{}{}, err
			}
			resp.Body.Close()
			return struct{}{}, nil
		})

	return err
}

// GetVulnerabilities returns the upstream scan report for a tag as an
// opaque document. The report schema is owned by the upstream scanner;
// interpreting it is not this client's job.
func (c *Client) GetVulnerabilities(ctx context.Context, namespace, repository, tag string) (any, error) {
	scanURL := fmt.Sprintf("%s/v2/repositories/%s/%s/tags/%s/images",
		c.apiURL, namespace, repository, url.PathEscape(tag))

	return Execute(ctx, c, namespace+"/"+repository, SessionAuth,
		func(ctx context.Context, token string) (any, error) {
			var body any
			if err := c.getJSON(ctx, scanURL, token, "", &body); err != nil {
				return nil, err
			}
			return body, nil
		})
}

func tagFromResponse(t tagResponse) Tag {
	tag := Tag{
		Name:        t.Name,
		FullSize:    t.FullSize,
		LastUpdated: parseTime(t.LastUpdated),
		Digest:      t.Digest,
		Images:      make([]TagImage, 0, len(t.Images)),
	}
	for _, img := range t.Images {
		tag.Images = append(tag.Images, TagImage{
			Architecture: img.Architecture,
			OS:           img.OS,
			Size:         img.Size,
			Digest:       img.Digest,
		})
	}
	return tag
}

func splitRepoName(repoName string) (string, string) {
	if namespace, name, ok := strings.Cut(repoName, "/"); ok {
		return namespace, name
	}
	return "library", repoName
}
