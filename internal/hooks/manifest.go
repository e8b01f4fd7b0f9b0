package hooks

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadManifest reads a JSON array of Descriptors from path. It validates
// phase values but does not resolve descriptors to Hook implementations;
// callers pair each Descriptor with a concrete Hook via a registry lookup
// before calling Pipeline.Register.
func LoadManifest(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hooks: read manifest: %w", err)
	}
	var descs []Descriptor
	if err := json.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("hooks: parse manifest: %w", err)
	}
	for _, d := range descs {
		switch d.Phase {
		case PhasePrePrompt, PhasePreTool, PhasePostTool:
		default:
			return nil, fmt.Errorf("hooks: manifest entry %q has unknown phase %q", d.ID, d.Phase)
		}
		if len(d.Triggers) == 0 {
			return nil, fmt.Errorf("hooks: manifest entry %q has no triggers", d.ID)
		}
	}
	return descs, nil
}

// Registry maps a Descriptor's id to the Hook constructor responsible for
// building it from its manifest config. The builtins package's Register
// function installs the eight built-in builders here; callers may add
// their own alongside it before calling Build.
type Registry struct {
	builders map[string]func(cfg map[string]any) (Hook, error)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]func(cfg map[string]any) (Hook, error))}
}

// MustRegister panics if id is already registered; called from builtins'
// Register function, where a duplicate id is a programming error.
func (r *Registry) MustRegister(id string, build func(cfg map[string]any) (Hook, error)) {
	if _, exists := r.builders[id]; exists {
		panic(fmt.Sprintf("hooks: duplicate builder for id %q", id))
	}
	r.builders[id] = build
}

// Build resolves every descriptor to a constructed Hook and registers it
// onto pipeline, then freezes the pipeline for serving.
func (r *Registry) Build(pipeline *Pipeline, descs []Descriptor) error {
	for _, d := range descs {
		build, ok := r.builders[d.ID]
		if !ok {
			return fmt.Errorf("hooks: no builder registered for manifest id %q", d.ID)
		}
		hook, err := build(d.Config)
		if err != nil {
			return fmt.Errorf("hooks: build %q: %w", d.ID, err)
		}
		pipeline.Register(d, hook)
	}
	pipeline.Freeze()
	return nil
}
