package builtins

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/apexnet/apexcore/internal/hooks"
	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/ledger"
	"github.com/apexnet/apexcore/internal/money"
)

func TestStaticAnalysis_BlocksDeniedImport(t *testing.T) {
	h, err := NewStaticAnalysis(nil)
	if err != nil {
		t.Fatalf("NewStaticAnalysis failed: %v", err)
	}
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{
		"arguments": map[string]any{"code": "import os; os.system('ls /')"},
	})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !payload.Halt {
		t.Fatal("expected halt on denied import")
	}
	if len(payload.Violations) != 1 || payload.Violations[0].Kind != "static_analysis_code" {
		t.Fatalf("unexpected violations: %+v", payload.Violations)
	}
}

func TestStaticAnalysis_CleanCodePasses(t *testing.T) {
	h, _ := NewStaticAnalysis(nil)
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{
		"arguments": map[string]any{"code": "print('hello')"},
	})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if payload.Halt {
		t.Fatal("expected no halt for clean code")
	}
}

func TestSanitizeOutput_RedactsSecret(t *testing.T) {
	h := NewSanitizeOutput()
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{
		"result": "here is my api_key: abcdef123456",
	})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if payload.Params["result"] == "here is my api_key: abcdef123456" {
		t.Fatal("expected secret to be redacted")
	}
}

type fakePermissionSource struct {
	perms map[string][]string
}

func (f fakePermissionSource) Permissions(agentID string) ([]string, error) {
	return f.perms[agentID], nil
}

func TestPermissionCheck_DeniesUnlistedTool(t *testing.T) {
	h := NewPermissionCheck(fakePermissionSource{perms: map[string][]string{
		"agent_a": {"noop"},
	}})
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{"name": "execute_python"})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !payload.Halt {
		t.Fatal("expected halt for unlisted tool")
	}
}

func TestPermissionCheck_AllowsListedTool(t *testing.T) {
	h := NewPermissionCheck(fakePermissionSource{perms: map[string][]string{
		"agent_a": {"noop"},
	}})
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{"name": "noop"})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if payload.Halt {
		t.Fatal("expected no halt for listed tool")
	}
}

func TestResourceMeter_RejectsOversizedContext(t *testing.T) {
	h, err := NewResourceMeterFromConfig(nil, map[string]any{"max_context_tokens": float64(1)})
	if err != nil {
		t.Fatalf("NewResourceMeterFromConfig failed: %v", err)
	}
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{
		"arguments": "this is a fairly long string of arguments that exceeds one token",
	})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !payload.Halt {
		t.Fatal("expected halt for oversized context")
	}
}

type fakeBalanceReader struct {
	records map[ids.AgentId]ledger.AgentRecord
}

func (f fakeBalanceReader) GetAgent(id ids.AgentId) (ledger.AgentRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return ledger.AgentRecord{}, ledger.ErrNotFound
	}
	return rec, nil
}

func TestResourceMeter_RejectsComplexityAboveTier(t *testing.T) {
	tiers := fakeBalanceReader{records: map[ids.AgentId]ledger.AgentRecord{
		"agent_a": {
			ID:         "agent_a",
			Metadata:   ledger.AgentMetadata{Tier: ledger.TierNovice},
			Financials: ledger.Financials{Balance: money.MustParse("2000.00")},
		},
	}}
	h, err := NewResourceMeterFromConfig(tiers, nil)
	if err != nil {
		t.Fatalf("NewResourceMeterFromConfig failed: %v", err)
	}
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{
		"complexity": "expert",
	})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !payload.Halt {
		t.Fatal("expected halt for complexity above the agent's tier ceiling")
	}
}

func TestResourceMeter_AllowsComplexityWithinTier(t *testing.T) {
	tiers := fakeBalanceReader{records: map[ids.AgentId]ledger.AgentRecord{
		"agent_a": {
			ID:         "agent_a",
			Metadata:   ledger.AgentMetadata{Tier: ledger.TierMaster},
			Financials: ledger.Financials{Balance: money.MustParse("2000.00")},
		},
	}}
	h, err := NewResourceMeterFromConfig(tiers, nil)
	if err != nil {
		t.Fatalf("NewResourceMeterFromConfig failed: %v", err)
	}
	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{
		"complexity": "expert",
	})
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if payload.Halt {
		t.Fatal("expected no halt for complexity within the agent's tier ceiling")
	}
}

func TestAuditEmit_WritesOneLinePerRequest(t *testing.T) {
	dir := t.TempDir()
	h, err := NewAuditEmit(dir + "/audit.log")
	if err != nil {
		t.Fatalf("NewAuditEmit failed: %v", err)
	}
	defer h.Close()

	payload := hooks.NewPayload("tools/call", "agent_a", map[string]any{"result": "ok"})
	payload.Context["request_id"] = "req_1"
	if err := h.Run(context.Background(), payload); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	data, err := os.ReadFile(dir + "/audit.log")
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Fatalf("expected 1 audit line, got %d", n)
	}
}
