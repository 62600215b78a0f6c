package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/hubgate/hubgate/internal/cache"
	"github.com/hubgate/hubgate/internal/hub"
	"github.com/rs/zerolog/log"
)

// ParamSpec declares one input parameter of a tool.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// Tool is one registered operation: its declaration for listing, and the
// handler that produces the envelope. Handlers never raise across the tool
// boundary; every failure is folded into the envelope.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`

	handler func(ctx context.Context, p Params) Result
}

// Registry composes the hub client and the response cache into the tool
// roster. One registry instance is constructed at startup and injected into
// the HTTP layer; nothing here is process-global, so tests build isolated
// instances freely.
type Registry struct {
	hub   *hub.Client
	store *cache.Cache

	tools map[string]*Tool
	order []string
}

// NewRegistry builds the full tool roster over the given collaborators.
func NewRegistry(client *hub.Client, store *cache.Cache) *Registry {
	r := &Registry{
		hub:   client,
		store: store,
		tools: make(map[string]*Tool),
	}

	r.registerImageTools()
	r.registerLayerTools()
	r.registerCacheTool()

	return r
}

// List returns the tool declarations in registration order.
func (r *Registry) List() []*Tool {
	list := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// ErrUnknownTool reports an invocation of a name not in the roster.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Invoke runs one tool. Handler failures are already folded into the
// envelope; only an unknown name returns an error.
func (r *Registry) Invoke(ctx context.Context, name string, p Params) (Result, error) {
	tool, ok := r.tools[name]
	if !ok {
		return Result{}, &ErrUnknownTool{Name: name}
	}

	start := time.Now()
	result := tool.handler(ctx, p)

	log.Debug().
		Str("tool", name).
		Bool("error", result.IsError).
		Dur("duration", time.Since(start)).
		Msg("tool invocation complete")

	return result, nil
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// cached wraps a fetch in the response cache under the operation's named
// strategy, with the deterministic key derived from the operation name and
// parameters.
func (r *Registry) cached(ctx context.Context, operation string, params map[string]any, strategy cache.Strategy, fetch func(context.Context) (any, error)) (any, error) {
	return r.store.GetOrCompute(ctx, cache.Key(operation, params), strategy, fetch)
}

func repoParams(p Params) (string, string) {
	return p.StringOr("namespace", "library"), p.String("repository")
}

func imageRefParams(p Params, prefix string) (hub.ImageRef, error) {
	if prefix == "" {
		return hub.NewImageRef(p.String("namespace"), p.String("repository"), p.String("tag"))
	}
	return hub.NewImageRef(
		p.String(prefix+"Namespace"),
		p.String(prefix+"Repository"),
		p.String(prefix+"Tag"),
	)
}

var repoParamSpecs = []ParamSpec{
	{Name: "namespace", Type: "string", Description: "Repository namespace, defaults to library"},
	{Name: "repository", Type: "string", Description: "Repository name", Required: true},
}

var imageParamSpecs = append(repoParamSpecs[:2:2],
	ParamSpec{Name: "tag", Type: "string", Description: "Tag name, defaults to latest"},
)
