// Package persona loads the declared, schema-validated agent personas that
// replace the source system's ad-hoc runtime-reflected markdown loader
// (see the REDESIGN FLAGS). Unknown fields in a persona file are rejected
// at load time rather than silently ignored.
package persona

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/apexnet/apexcore/internal/ledger"
)

// Record is the compiled, validated persona the core consumes. It is the
// only shape handlers and hooks ever see; the loader is responsible for
// translating whatever on-disk format a deployment uses into this record.
type Record struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Tier        ledger.Tier `json:"tier"`
	BaseRate    string      `json:"base_rate"`
	Permissions []string    `json:"permissions"`
}

// Loader reads a directory of persona files and returns validated Records.
// A real deployment may read YAML or a database; this implementation reads
// one JSON file per persona, rejecting unknown top-level fields.
type Loader struct {
	dir string
}

// NewLoader builds a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads every *.json file directly under the loader's directory.
func (l *Loader) Load() (map[string]Record, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("persona: read dir: %w", err)
	}
	out := make(map[string]Record)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(l.dir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("persona: read %s: %w", entry.Name(), err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("persona: decode %s: %w", entry.Name(), err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("persona: %s missing required id field", entry.Name())
		}
		out[rec.ID] = rec
	}
	return out, nil
}

// Registry is an in-memory lookup of loaded Records, implementing the
// narrow PermissionSource interface the permission_check hook depends on.
type Registry struct {
	records map[string]Record
}

// NewRegistry wraps a loaded record set.
func NewRegistry(records map[string]Record) *Registry {
	return &Registry{records: records}
}

// Permissions returns the permitted tool names for agentID.
func (r *Registry) Permissions(agentID string) ([]string, error) {
	rec, ok := r.records[agentID]
	if !ok {
		return nil, fmt.Errorf("persona: unknown agent %q", agentID)
	}
	return rec.Permissions, nil
}

// Get returns the persona record for agentID.
func (r *Registry) Get(agentID string) (Record, bool) {
	rec, ok := r.records[agentID]
	return rec, ok
}
