package prompts

import (
	"fmt"
	"sort"
	"sync"
)

// PromptRegistry holds prompts by ID and version.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]map[PromptVersion]*Prompt
}

var (
	defaultRegistry     *PromptRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry the built-in prompts register into.
func DefaultRegistry() *PromptRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPromptRegistry()
	})
	return defaultRegistry
}

func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]map[PromptVersion]*Prompt)}
}

// Register adds p, replacing any prompt with the same ID and version.
func (r *PromptRegistry) Register(p *Prompt) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[PromptVersion]*Prompt)
	}
	r.prompts[p.ID][p.Version] = p
}

// Get returns one version of a prompt.
func (r *PromptRegistry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	p, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, version)
	}
	return p, nil
}

// GetLatest returns the highest non-deprecated version, falling back to the
// highest deprecated one.
func (r *PromptRegistry) GetLatest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.prompts[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}

	keys := make([]PromptVersion, 0, len(versions))
	for v := range versions {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	for _, v := range keys {
		if !versions[v].Deprecated {
			return versions[v], nil
		}
	}
	return versions[keys[0]], nil
}
