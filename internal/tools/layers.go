package tools

import (
	"context"
	"fmt"

	"github.com/hubgate/hubgate/internal/cache"
	"github.com/hubgate/hubgate/internal/hub"
)

func (r *Registry) registerLayerTools() {
	r.register(&Tool{
		Name:        "get_manifest",
		Description: "Fetch the raw manifest document for a tag.",
		Params:      imageParamSpecs,
		handler:     r.getManifest,
	})

	r.register(&Tool{
		Name:        "analyze_layers",
		Description: "Summarize the layers of a tag: count, sizes, digests.",
		Params:      imageParamSpecs,
		handler:     r.analyzeLayers,
	})

	r.register(&Tool{
		Name:        "compare_images",
		Description: "Compare the layers of two tags and report overlap and size delta.",
		Params: []ParamSpec{
			{Name: "firstNamespace", Type: "string", Description: "First image namespace, defaults to library"},
			{Name: "firstRepository", Type: "string", Description: "First image repository", Required: true},
			{Name: "firstTag", Type: "string", Description: "First image tag, defaults to latest"},
			{Name: "secondNamespace", Type: "string", Description: "Second image namespace, defaults to library"},
			{Name: "secondRepository", Type: "string", Description: "Second image repository", Required: true},
			{Name: "secondTag", Type: "string", Description: "Second image tag, defaults to latest"},
		},
		handler: r.compareImages,
	})

	r.register(&Tool{
		Name:        "get_dockerfile",
		Description: "Reconstruct an approximate Dockerfile from a tag's image history.",
		Params:      imageParamSpecs,
		handler:     r.getDockerfile,
	})

	r.register(&Tool{
		Name:        "get_vulnerabilities",
		Description: "Fetch the vulnerability scan summary for a tag.",
		Params:      imageParamSpecs,
		handler:     r.getVulnerabilities,
	})

	r.register(&Tool{
		Name:        "get_image_history",
		Description: "Fetch the build history steps recorded in a tag's image config.",
		Params:      imageParamSpecs,
		handler:     r.getImageHistory,
	})

	r.register(&Tool{
		Name:        "track_base_image",
		Description: "Detect a tag's base image and report whether the base has moved.",
		Params:      imageParamSpecs,
		handler:     r.trackBaseImage,
	})

	r.register(&Tool{
		Name:        "estimate_pull_size",
		Description: "Estimate the download size of pulling a tag.",
		Params:      imageParamSpecs,
		handler:     r.estimatePullSize,
	})
}

func (r *Registry) getManifest(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("get manifest", nil, err)
	}

	value, err := r.cached(ctx, "getManifest", refParams(ref), cache.Manifest,
		func(ctx context.Context) (any, error) {
			return r.hub.GetManifest(ctx, ref)
		})
	if err != nil {
		return failure(fmt.Sprintf("get manifest for %s", ref), nil, err)
	}

	return success(fmt.Sprintf("Manifest for %s", ref), value)
}

func (r *Registry) analyzeLayers(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("analyze layers", hub.LayerAnalysis{Layers: []hub.Layer{}}, err)
	}

	value, err := r.cached(ctx, "analyzeLayers", refParams(ref), cache.Manifest,
		func(ctx context.Context) (any, error) {
			return r.hub.AnalyzeLayers(ctx, ref)
		})
	if err != nil {
		return failure(fmt.Sprintf("analyze layers for %s", ref),
			hub.LayerAnalysis{Layers: []hub.Layer{}}, err)
	}

	analysis := value.(hub.LayerAnalysis)
	return success(
		fmt.Sprintf("%s: %d layers, %d bytes total", ref, analysis.LayerCount, analysis.TotalSize),
		analysis,
	)
}

func (r *Registry) compareImages(ctx context.Context, p Params) Result {
	first, err := imageRefParams(p, "first")
	if err != nil {
		return failure("compare images", hub.ImageComparison{}, err)
	}
	second, err := imageRefParams(p, "second")
	if err != nil {
		return failure("compare images", hub.ImageComparison{}, err)
	}

	params := map[string]any{"first": first, "second": second}
	value, err := r.cached(ctx, "compareImages", params, cache.Manifest,
		func(ctx context.Context) (any, error) {
			return r.hub.CompareImages(ctx, first, second)
		})
	if err != nil {
		return failure(fmt.Sprintf("compare %s with %s", first, second),
			hub.ImageComparison{}, err)
	}

	cmp := value.(hub.ImageComparison)
	return success(
		fmt.Sprintf("%s and %s share %d layers (size delta %d bytes)",
			first, second, cmp.SharedLayers, cmp.SizeDelta),
		cmp,
	)
}

func (r *Registry) getDockerfile(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("get dockerfile", "", err)
	}

	value, err := r.cached(ctx, "getDockerfile", refParams(ref), cache.Dockerfile,
		func(ctx context.Context) (any, error) {
			return r.hub.GetDockerfile(ctx, ref)
		})
	if err != nil {
		return failure(fmt.Sprintf("get dockerfile for %s", ref), "", err)
	}

	dockerfile := value.(string)
	return success(
		fmt.Sprintf("Reconstructed Dockerfile for %s", ref),
		map[string]any{"reference": ref.String(), "dockerfile": dockerfile},
	)
}

func (r *Registry) getVulnerabilities(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("get vulnerabilities", nil, err)
	}

	value, err := r.cached(ctx, "getVulnerabilities", refParams(ref), cache.Vulnerabilities,
		func(ctx context.Context) (any, error) {
			return r.hub.GetVulnerabilities(ctx, ref.Namespace, ref.Repository, ref.Tag)
		})
	if err != nil {
		return failure(fmt.Sprintf("get vulnerabilities for %s", ref), nil, err)
	}

	return success(fmt.Sprintf("Vulnerability report for %s", ref), value)
}

func (r *Registry) getImageHistory(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("get image history", []hub.HistoryStep{}, err)
	}

	value, err := r.cached(ctx, "getImageHistory", refParams(ref), cache.Manifest,
		func(ctx context.Context) (any, error) {
			return r.hub.GetImageHistory(ctx, ref)
		})
	if err != nil {
		return failure(fmt.Sprintf("get image history for %s", ref), []hub.HistoryStep{}, err)
	}

	history := value.([]hub.HistoryStep)
	return success(
		fmt.Sprintf("%s was built in %d steps", ref, len(history)),
		history,
	)
}

func (r *Registry) trackBaseImage(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("track base image", hub.BaseImageStatus{}, err)
	}

	value, err := r.cached(ctx, "trackBaseImage", refParams(ref), cache.Stats,
		func(ctx context.Context) (any, error) {
			return r.hub.CheckBaseImage(ctx, ref)
		})
	if err != nil {
		return failure(fmt.Sprintf("track base image for %s", ref), hub.BaseImageStatus{}, err)
	}

	status := value.(hub.BaseImageStatus)
	summary := fmt.Sprintf("%s: no base image annotation found", ref)
	if status.Detected {
		state := "has moved"
		if status.UpToDate {
			state = "is current"
		}
		summary = fmt.Sprintf("%s is built on %s, which %s", ref, status.BaseImage, state)
	}
	return success(summary, status)
}

func (r *Registry) estimatePullSize(ctx context.Context, p Params) Result {
	ref, err := imageRefParams(p, "")
	if err != nil {
		return failure("estimate pull size", hub.PullSizeEstimate{Layers: []hub.Layer{}}, err)
	}

	value, err := r.cached(ctx, "estimatePullSize", refParams(ref), cache.Manifest,
		func(ctx context.Context) (any, error) {
			return r.hub.EstimatePullSize(ctx, ref)
		})
	if err != nil {
		return failure(fmt.Sprintf("estimate pull size for %s", ref),
			hub.PullSizeEstimate{Layers: []hub.Layer{}}, err)
	}

	estimate := value.(hub.PullSizeEstimate)
	return success(
		fmt.Sprintf("Pulling %s downloads %d bytes across %d layers",
			ref, estimate.TotalSize, len(estimate.Layers)),
		estimate,
	)
}

func refParams(ref hub.ImageRef) map[string]any {
	return map[string]any{
		"namespace":  ref.Namespace,
		"repository": ref.Repository,
		"tag":        ref.Tag,
	}
}
