package llm

import (
	"context"
	"fmt"
	"sort"
)

// ModelRoute binds a logical model to a provider and physical model name.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Registry resolves models to providers.
type Registry struct {
	providers    map[string]Provider
	models       map[string]ModelRoute
	defaultModel string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelRoute),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a model route.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	r.models[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

// Has reports whether a model id is registered.
func (r *Registry) Has(modelName string) bool {
	_, ok := r.models[modelName]
	return ok
}

// DefaultModel returns the default model id.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Models lists registered model ids in sorted order.
func (r *Registry) Models() []string {
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the provider and route for a given model name (default if empty).
func (r *Registry) Resolve(modelName string) (Provider, ModelRoute, error) {
	if modelName == "" {
		modelName = r.defaultModel
	}

	route, ok := r.models[modelName]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("model %q not registered", modelName)
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("provider %q not registered for model %q", route.Provider, modelName)
	}

	return p, route, nil
}

// RegistryEngine is the Engine backed by the model registry.
type RegistryEngine struct {
	registry *Registry
}

// NewRegistryEngine wraps a registry as an Engine.
func NewRegistryEngine(reg *Registry) *RegistryEngine {
	return &RegistryEngine{registry: reg}
}

// Generate resolves the model route, fills parameter defaults from it and calls the provider.
func (e *RegistryEngine) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	provider, route, err := e.registry.Resolve(req.Model)
	if err != nil {
		return "", NewGenerationError(ReasonUnavailable, req.Model, err)
	}

	resp, err := provider.Chat(ctx, ChatRequest{
		Model:       route.Model,
		Messages:    req.Messages,
		MaxTokens:   pickMaxTokens(req.MaxTokens, route.MaxTokens),
		Temperature: pickTemperature(req.Temperature, route.Temperature),
	})
	if err != nil {
		return "", NewGenerationError(ClassifyError(err), route.Name, err)
	}
	return resp.Message.Content, nil
}

func pickTemperature(reqTemp, routeTemp *float64) float64 {
	if reqTemp != nil {
		return *reqTemp
	}
	if routeTemp != nil {
		return *routeTemp
	}
	return DefaultTemperature
}

func pickMaxTokens(reqMax int, routeMax int) int {
	if reqMax > 0 {
		return reqMax
	}
	if routeMax > 0 {
		return routeMax
	}
	return 0
}
