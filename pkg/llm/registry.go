package llm

import "github.com/kadirpekel/magictunnel-core/pkg/registry"

// Registry is the named set of configured providers, adapted from the
// teacher's own `pkg/llms/registry.go` (LLMRegistry wraps a generic
// BaseRegistry) onto this module's pkg/registry.
type Registry struct {
	*registry.Registry[Provider]
}

// NewRegistry builds an empty provider Registry.
func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Provider]()}
}
