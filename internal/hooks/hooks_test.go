package hooks

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fnHook struct {
	id  string
	run func(ctx context.Context, p *Payload) error
}

func (f fnHook) ID() string { return f.id }
func (f fnHook) Run(ctx context.Context, p *Payload) error { return f.run(ctx, p) }

func TestPipeline_RunsInPriorityOrder(t *testing.T) {
	p := New()
	var order []string
	record := func(id string) func(context.Context, *Payload) error {
		return func(ctx context.Context, payload *Payload) error {
			order = append(order, id)
			return nil
		}
	}
	p.Register(Descriptor{ID: "b", Phase: PhasePreTool, Priority: 10, Triggers: []string{"*"}}, fnHook{id: "b", run: record("b")})
	p.Register(Descriptor{ID: "a", Phase: PhasePreTool, Priority: 5, Triggers: []string{"*"}}, fnHook{id: "a", run: record("a")})
	p.Register(Descriptor{ID: "c", Phase: PhasePreTool, Priority: 10, Triggers: []string{"*"}}, fnHook{id: "c", run: record("c")})
	p.Freeze()

	p.Run(context.Background(), PhasePreTool, NewPayload("tools/call", "agent_a", nil))

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestPipeline_TriggerFiltering(t *testing.T) {
	p := New()
	ran := false
	p.Register(Descriptor{ID: "only_transfer", Phase: PhasePreTool, Priority: 0, Triggers: []string{"ledger/transfer"}},
		fnHook{id: "only_transfer", run: func(ctx context.Context, payload *Payload) error { ran = true; return nil }})
	p.Freeze()

	p.Run(context.Background(), PhasePreTool, NewPayload("tools/call", "agent_a", nil))
	if ran {
		t.Fatal("hook should not have run for a non-matching method")
	}

	p.Run(context.Background(), PhasePreTool, NewPayload("ledger/transfer", "agent_a", nil))
	if !ran {
		t.Fatal("hook should have run for a matching method")
	}
}

func TestPipeline_NonCriticalErrorDoesNotHalt(t *testing.T) {
	p := New()
	p.Register(Descriptor{ID: "flaky", Phase: PhasePreTool, Priority: 0, Triggers: []string{"*"}},
		fnHook{id: "flaky", run: func(ctx context.Context, payload *Payload) error { return errors.New("boom") }})
	p.Freeze()

	payload := NewPayload("tools/call", "agent_a", nil)
	p.Run(context.Background(), PhasePreTool, payload)

	if payload.Halt {
		t.Fatal("non-critical hook error must not halt the pipeline")
	}
	if len(payload.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(payload.Violations))
	}
}

func TestPipeline_CriticalErrorHalts(t *testing.T) {
	p := New()
	p.Register(Descriptor{ID: "guard", Phase: PhasePreTool, Priority: 0, Triggers: []string{"*"}, Critical: true},
		fnHook{id: "guard", run: func(ctx context.Context, payload *Payload) error { return errors.New("blocked") }})
	p.Freeze()

	payload := NewPayload("tools/call", "agent_a", nil)
	p.Run(context.Background(), PhasePreTool, payload)

	if !payload.Halt {
		t.Fatal("critical hook error must halt the pipeline")
	}
}

func TestPipeline_TimeoutRecordsHookTimeout(t *testing.T) {
	p := New().WithBudget(10 * time.Millisecond)
	p.Register(Descriptor{ID: "slow", Phase: PhasePreTool, Priority: 0, Triggers: []string{"*"}},
		fnHook{id: "slow", run: func(ctx context.Context, payload *Payload) error {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
			}
			return nil
		}})
	p.Freeze()

	payload := NewPayload("tools/call", "agent_a", nil)
	p.Run(context.Background(), PhasePreTool, payload)

	if len(payload.Violations) != 1 || payload.Violations[0].Kind != "hook_timeout" {
		t.Fatalf("expected a hook_timeout violation, got %+v", payload.Violations)
	}
}

func TestPipeline_RunIsDeterministicAcrossRepeats(t *testing.T) {
	p := New()
	p.Register(Descriptor{ID: "audit", Phase: PhasePostTool, Priority: 0, Triggers: []string{"*"}},
		fnHook{id: "audit", run: func(ctx context.Context, payload *Payload) error {
			payload.Annotations["seen"] = true
			return nil
		}})
	p.Freeze()

	first := NewPayload("tools/call", "agent_a", nil)
	p.Run(context.Background(), PhasePostTool, first)
	second := NewPayload("tools/call", "agent_a", nil)
	p.Run(context.Background(), PhasePostTool, second)

	if first.Annotations["seen"] != second.Annotations["seen"] {
		t.Fatal("repeated pipeline runs on equivalent payloads must agree")
	}
}
