package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func writePersona(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoader_LoadValid(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "agent_a.json", `{
		"id": "agent_a",
		"display_name": "Agent A",
		"tier": "novice",
		"base_rate": "1.00",
		"permissions": ["get_agent"]
	}`)

	records, err := NewLoader(dir).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rec, ok := records["agent_a"]
	if !ok {
		t.Fatalf("expected record for agent_a, got %v", records)
	}
	if rec.DisplayName != "Agent A" {
		t.Errorf("expected display name 'Agent A', got %q", rec.DisplayName)
	}

	reg := NewRegistry(records)
	perms, err := reg.Permissions("agent_a")
	if err != nil {
		t.Fatalf("Permissions failed: %v", err)
	}
	if len(perms) != 1 || perms[0] != "get_agent" {
		t.Errorf("unexpected permissions: %v", perms)
	}
}

func TestLoader_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "agent_b.json", `{
		"id": "agent_b",
		"display_name": "Agent B",
		"tier": "novice",
		"base_rate": "1.00",
		"permissions": [],
		"secret_backdoor": true
	}`)

	if _, err := NewLoader(dir).Load(); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoader_RejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "agent_c.json", `{
		"display_name": "Agent C",
		"tier": "novice",
		"base_rate": "1.00",
		"permissions": []
	}`)

	if _, err := NewLoader(dir).Load(); err == nil {
		t.Fatal("expected error for missing id, got nil")
	}
}

func TestRegistry_UnknownAgent(t *testing.T) {
	reg := NewRegistry(map[string]Record{})
	if _, err := reg.Permissions("ghost"); err == nil {
		t.Fatal("expected error for unknown agent, got nil")
	}
	if _, ok := reg.Get("ghost"); ok {
		t.Error("expected ok=false for unknown agent")
	}
}
