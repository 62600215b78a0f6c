package hub

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// ImageRef identifies one namespace/repository:tag triple on Docker Hub.
type ImageRef struct {
	Namespace  string
	Repository string
	Tag        string
}

func (r ImageRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.Namespace, r.Repository, r.Tag)
}

// PullScope returns the registry token scope for pulling this image.
func (r ImageRef) PullScope() string {
	return PullScope(r.Namespace, r.Repository)
}

// ParseImageRef parses an image reference in any of the forms users write
// ("nginx", "nginx:alpine", "library/nginx:latest"), normalizing single
// names into the library namespace. Digest references are rejected: every
// operation here addresses images by tag.
func ParseImageRef(s string) (ImageRef, error) {
	tag, err := name.NewTag(s,
		name.WithDefaultRegistry(name.DefaultRegistry),
		name.WithDefaultTag("latest"),
	)
	if err != nil {
		return ImageRef{}, fmt.Errorf("invalid image reference %q: %w", s, err)
	}

	repository := tag.RepositoryStr()
	namespace, repo, ok := strings.Cut(repository, "/")
	if !ok {
		namespace, repo = "library", repository
	}
	if strings.Contains(repo, "/") {
		return ImageRef{}, fmt.Errorf("invalid image reference %q: nested repository paths are not supported on Docker Hub", s)
	}

	return ImageRef{
		Namespace:  namespace,
		Repository: repo,
		Tag:        tag.TagStr(),
	}, nil
}

// NewImageRef validates an explicit triple, applying the library namespace
// and latest tag defaults for empty fields.
func NewImageRef(namespace, repository, tag string) (ImageRef, error) {
	if repository == "" {
		return ImageRef{}, fmt.Errorf("repository is required")
	}
	if namespace == "" {
		namespace = "library"
	}
	if tag == "" {
		tag = "latest"
	}

	return ParseImageRef(fmt.Sprintf("%s/%s:%s", namespace, repository, tag))
}
