package hub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// manifestAccept lists the manifest media types the client understands,
// multi-arch indexes included.
const manifestAccept = "application/vnd.docker.distribution.manifest.v2+json, " +
	"application/vnd.docker.distribution.manifest.list.v2+json, " +
	"application/vnd.oci.image.manifest.v1+json, " +
	"application/vnd.oci.image.index.v1+json"

// manifestDoc is the subset of a manifest document the layer operations
// need. Raw manifests are passed through opaque; this shape exists only for
// layer and size arithmetic.
type manifestDoc struct {
	SchemaVersion int    `json:"schemaVersion"`
	MediaType     string `json:"mediaType"`
	Config        struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
	} `json:"config"`
	Layers []struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
	} `json:"layers"`
	Manifests []struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
		Platform  struct {
			Architecture string `json:"architecture"`
			OS           string `json:"os"`
		} `json:"platform"`
	} `json:"manifests"`
}

// imageConfig is the subset of an image config blob used for history,
// dockerfile reconstruction and base image detection.
type imageConfig struct {
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"config"`
	History []struct {
		Created    string `json:"created"`
		CreatedBy  string `json:"created_by"`
		Comment    string `json:"comment"`
		EmptyLayer bool   `json:"empty_layer"`
	} `json:"history"`
}

// Layer is one layer of a resolved manifest.
type Layer struct {
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	MediaType string `json:"mediaType"`
}

// LayerAnalysis summarizes the layers of an image.
type LayerAnalysis struct {
	Reference  string  `json:"reference"`
	LayerCount int     `json:"layerCount"`
	TotalSize  int64   `json:"totalSize"`
	Layers     []Layer `json:"layers"`
}

// ImageComparison reports layer overlap between two images.
type ImageComparison struct {
	First          string `json:"first"`
	Second         string `json:"second"`
	SharedLayers   int    `json:"sharedLayers"`
	UniqueToFirst  int    `json:"uniqueToFirst"`
	UniqueToSecond int    `json:"uniqueToSecond"`
	FirstSize      int64  `json:"firstSize"`
	SecondSize     int64  `json:"secondSize"`
	SizeDelta      int64  `json:"sizeDelta"`
}

// HistoryStep is one build step of an image's recorded history, oldest
// first.
type HistoryStep struct {
	Created    time.Time `json:"created"`
	CreatedBy  string    `json:"createdBy"`
	Comment    string    `json:"comment,omitempty"`
	EmptyLayer bool      `json:"emptyLayer"`
}

// BaseImageStatus reports the detected base image of a tag and whether the
// base's current layers still match.
type BaseImageStatus struct {
	Reference string `json:"reference"`
	BaseImage string `json:"baseImage"`
	Detected  bool   `json:"detected"`
	UpToDate  bool   `json:"upToDate"`
	Reason    string `json:"reason"`
}

// PullSizeEstimate is the total download size of an image with a per-layer
// breakdown. Sizes are compressed transfer sizes, not unpacked sizes.
type PullSizeEstimate struct {
	Reference  string  `json:"reference"`
	TotalSize  int64   `json:"totalSize"`
	ConfigSize int64   `json:"configSize"`
	Layers     []Layer `json:"layers"`
}

// GetManifest fetches the raw manifest document for a tag, passed through
// as opaque parsed JSON. Multi-arch tags return the index document.
func (c *Client) GetManifest(ctx context.Context, ref ImageRef) (any, error) {
	manifestURL := c.manifestURL(ref.Namespace, ref.Repository, ref.Tag)

	return Execute(ctx, c, ref.PullScope(), RegistryAuth,
		func(ctx context.Context, token string) (any, error) {
			var body any
			if err := c.getJSON(ctx, manifestURL, token, manifestAccept, &body); err != nil {
				return nil, err
			}
			return body, nil
		})
}

// AnalyzeLayers returns the layer list and total byte size for a tag. For
// multi-arch tags the linux/amd64 variant is analyzed.
func (c *Client) AnalyzeLayers(ctx context.Context, ref ImageRef) (LayerAnalysis, error) {
	return Execute(ctx, c, ref.PullScope(), RegistryAuth,
		func(ctx context.Context, token string) (LayerAnalysis, error) {
			doc, err := c.resolveManifest(ctx, ref, token)
			if err != nil {
				return LayerAnalysis{}, err
			}

			analysis := LayerAnalysis{
				Reference: ref.String(),
				Layers:    make([]Layer, 0, len(doc.Layers)),
			}
			for _, l := range doc.Layers {
				analysis.Layers = append(analysis.Layers, Layer{
					Digest:    l.Digest,
					Size:      l.Size,
					MediaType: l.MediaType,
				})
				analysis.TotalSize += l.Size
			}
			analysis.LayerCount = len(analysis.Layers)

			return analysis, nil
		})
}

// CompareImages reports shared and unique layer counts and the size delta
// between two images. Each image is fetched under its own pull scope, so a
// private/public mix works.
func (c *Client) CompareImages(ctx context.Context, first, second ImageRef) (ImageComparison, error) {
	a, err := c.AnalyzeLayers(ctx, first)
	if err != nil {
		return ImageComparison{}, fmt.Errorf("analyzing %s: %w", first, err)
	}

	b, err := c.AnalyzeLayers(ctx, second)
	if err != nil {
		return ImageComparison{}, fmt.Errorf("analyzing %s: %w", second, err)
	}

	firstDigests := make(map[string]bool, len(a.Layers))
	for _, l := range a.Layers {
		firstDigests[l.Digest] = true
	}

	comparison := ImageComparison{
		First:      first.String(),
		Second:     second.String(),
		FirstSize:  a.TotalSize,
		SecondSize: b.TotalSize,
		SizeDelta:  b.TotalSize - a.TotalSize,
	}

	secondDigests := make(map[string]bool, len(b.Layers))
	for _, l := range b.Layers {
		secondDigests[l.Digest] = true
		if firstDigests[l.Digest] {
			comparison.SharedLayers++
		} else {
			comparison.UniqueToSecond++
		}
	}
	for digest := range firstDigests {
		if !secondDigests[digest] {
			comparison.UniqueToFirst++
		}
	}

	return comparison, nil
}

// GetImageHistory returns the ordered build-step history recorded in the
// image config, oldest step first.
func (c *Client) GetImageHistory(ctx context.Context, ref ImageRef) ([]HistoryStep, error) {
	return Execute(ctx, c, ref.PullScope(), RegistryAuth,
		func(ctx context.Context, token string) ([]HistoryStep, error) {
			cfg, err := c.imageConfig(ctx, ref, token)
			if err != nil {
				return nil, err
			}

			steps := make([]HistoryStep, 0, len(cfg.History))
			for _, h := range cfg.History {
				steps = append(steps, HistoryStep{
					Created:    parseTime(h.Created),
					CreatedBy:  h.CreatedBy,
					Comment:    h.Comment,
					EmptyLayer: h.EmptyLayer,
				})
			}

			return steps, nil
		})
}

// GetDockerfile reconstructs approximate dockerfile text from the image
// history. Images built without embedded history return the empty string.
func (c *Client) GetDockerfile(ctx context.Context, ref ImageRef) (string, error) {
	steps, err := c.GetImageHistory(ctx, ref)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(steps))
	for _, step := range steps {
		if line := dockerfileLine(step.CreatedBy); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n"), nil
}

// CheckBaseImage detects the base image of a tag from the OCI base-image
// annotations and reports whether the base's current layers are still a
// prefix of this image's layers. Images without the annotation report
// Detected false.
func (c *Client) CheckBaseImage(ctx context.Context, ref ImageRef) (BaseImageStatus, error) {
	status := BaseImageStatus{Reference: ref.String()}

	bl, err := Execute(ctx, c, ref.PullScope(), RegistryAuth,
		func(ctx context.Context, token string) (baseAndLayers, error) {
			cfg, err := c.imageConfig(ctx, ref, token)
			if err != nil {
				return baseAndLayers{}, err
			}

			doc, err := c.resolveManifest(ctx, ref, token)
			if err != nil {
				return baseAndLayers{}, err
			}

			digests := make([]string, 0, len(doc.Layers))
			for _, l := range doc.Layers {
				digests = append(digests, l.Digest)
			}

			return baseAndLayers{
				base:   cfg.Config.Labels["org.opencontainers.image.base.name"],
				layers: digests,
			}, nil
		})
	if err != nil {
		return status, err
	}

	if bl.base == "" {
		status.Reason = "image carries no base-image annotation"
		return status, nil
	}

	status.BaseImage = bl.base
	status.Detected = true

	baseRef, err := ParseImageRef(bl.base)
	if err != nil {
		status.Reason = fmt.Sprintf("base image reference not resolvable: %v", err)
		return status, nil
	}

	baseAnalysis, err := c.AnalyzeLayers(ctx, baseRef)
	if err != nil {
		status.Reason = fmt.Sprintf("base image layers unavailable: %v", err)
		return status, nil
	}

	status.UpToDate = layerPrefixMatch(baseAnalysis.Layers, bl.layers)
	if status.UpToDate {
		status.Reason = "base image layers match"
	} else {
		status.Reason = "base image has been updated since this image was built"
	}

	return status, nil
}

// EstimatePullSize returns the total download size for a tag with a
// per-layer breakdown.
func (c *Client) EstimatePullSize(ctx context.Context, ref ImageRef) (PullSizeEstimate, error) {
	return Execute(ctx, c, ref.PullScope(), RegistryAuth,
		func(ctx context.Context, token string) (PullSizeEstimate, error) {
			doc, err := c.resolveManifest(ctx, ref, token)
			if err != nil {
				return PullSizeEstimate{}, err
			}

			estimate := PullSizeEstimate{
				Reference:  ref.String(),
				ConfigSize: doc.Config.Size,
				TotalSize:  doc.Config.Size,
				Layers:     make([]Layer, 0, len(doc.Layers)),
			}
			for _, l := range doc.Layers {
				estimate.Layers = append(estimate.Layers, Layer{
					Digest:    l.Digest,
					Size:      l.Size,
					MediaType: l.MediaType,
				})
				estimate.TotalSize += l.Size
			}

			return estimate, nil
		})
}

// baseAndLayers pairs the detected base annotation with the image's layer
// digests, gathered under a single escalation.
type baseAndLayers struct {
	base   string
	layers []string
}

// resolveManifest fetches the manifest for a tag, following a multi-arch
// index to its linux/amd64 variant (or the first listed variant when no
// amd64 build exists).
func (c *Client) resolveManifest(ctx context.Context, ref ImageRef, token string) (manifestDoc, error) {
	var doc manifestDoc
	err := c.getJSON(ctx, c.manifestURL(ref.Namespace, ref.Repository, ref.Tag), token, manifestAccept, &doc)
	if err != nil {
		return manifestDoc{}, err
	}

	if len(doc.Manifests) == 0 {
		return doc, nil
	}

	digest := doc.Manifests[0].Digest
	for _, m := range doc.Manifests {
		if m.Platform.OS == "linux" && m.Platform.Architecture == "amd64" {
			digest = m.Digest
			break
		}
	}

	var resolved manifestDoc
	err = c.getJSON(ctx, c.manifestURL(ref.Namespace, ref.Repository, digest), token, manifestAccept, &resolved)
	if err != nil {
		return manifestDoc{}, fmt.Errorf("resolving index variant %s: %w", digest, err)
	}

	return resolved, nil
}

// imageConfig fetches the config blob referenced by the resolved manifest.
func (c *Client) imageConfig(ctx context.Context, ref ImageRef, token string) (imageConfig, error) {
	doc, err := c.resolveManifest(ctx, ref, token)
	if err != nil {
		return imageConfig{}, err
	}
	if doc.Config.Digest == "" {
		return imageConfig{}, &StatusError{Code: 404, Message: "manifest has no config reference"}
	}

	blobURL := fmt.Sprintf("%s/v2/%s/%s/blobs/%s",
		c.registryURL, ref.Namespace, ref.Repository, url.PathEscape(doc.Config.Digest))

	var cfg imageConfig
	if err := c.getJSON(ctx, blobURL, token, "", &cfg); err != nil {
		return imageConfig{}, err
	}

	return cfg, nil
}

func (c *Client) manifestURL(namespace, repository, reference string) string {
	return fmt.Sprintf("%s/v2/%s/%s/manifests/%s",
		c.registryURL, namespace, repository, url.PathEscape(reference))
}

// dockerfileLine converts one history created_by entry into dockerfile
// text. Buildkit and classic builder each leave their own markers.
func dockerfileLine(createdBy string) string {
	line := strings.TrimSpace(createdBy)
	if line == "" {
		return ""
	}

	// classic builder: "/bin/sh -c #(nop)  EXPOSE 80" or "/bin/sh -c apt-get ..."
	if rest, ok := strings.CutPrefix(line, "/bin/sh -c #(nop)"); ok {
		return strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutPrefix(line, "/bin/sh -c"); ok {
		return "RUN " + strings.TrimSpace(rest)
	}

	// buildkit embeds the instruction verbatim with a trailing marker
	line = strings.TrimSuffix(line, " # buildkit")
	return strings.TrimSpace(line)
}

func layerPrefixMatch(base []Layer, image []string) bool {
	if len(base) == 0 || len(base) > len(image) {
		return false
	}
	for i, l := range base {
		if image[i] != l.Digest {
			return false
		}
	}
	return true
}
