// Package hooks implements the ordered, phase-separated interceptor
// pipeline (the "hypervisor") that every tool call and prompt passes
// through before it reaches a handler. Hooks may annotate, veto, or
// transform a request; they never mutate ledger state directly.
package hooks

import (
	"context"
	"sort"
	"time"
)

// Phase is one of the three points in a request's lifecycle where hooks run.
type Phase string

const (
	PhasePrePrompt Phase = "PRE_PROMPT"
	PhasePreTool   Phase = "PRE_TOOL"
	PhasePostTool  Phase = "POST_TOOL"
)

// Violation records a single hook-reported policy or security failure.
type Violation struct {
	Kind    string         `json:"kind"`
	HookID  string         `json:"hook_id"`
	Detail  string         `json:"detail"`
	Code    int            `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Payload is the mutable request state threaded through a phase's hooks.
type Payload struct {
	Kind        string
	Method      string
	AgentID     string
	Params      map[string]any
	Context     map[string]any
	Annotations map[string]any
	Halt        bool
	Violations  []Violation
}

// NewPayload builds an empty Payload ready for a pipeline run.
func NewPayload(method, agentID string, params map[string]any) *Payload {
	return &Payload{
		Method:      method,
		AgentID:     agentID,
		Params:      params,
		Context:     map[string]any{},
		Annotations: map[string]any{},
	}
}

// AddViolation appends a violation to the payload. It does not itself set Halt.
func (p *Payload) AddViolation(v Violation) {
	p.Violations = append(p.Violations, v)
}

// Hook is a single interceptor registered for one phase.
type Hook interface {
	ID() string
	Run(ctx context.Context, payload *Payload) error
}

// Descriptor is the startup-time registration record for a Hook, matching
// the JSON shape of the hook manifest file.
type Descriptor struct {
	ID       string         `json:"id"`
	Phase    Phase          `json:"phase"`
	Priority int32          `json:"priority"`
	Triggers []string       `json:"triggers"`
	Critical bool           `json:"critical,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// registeredHook pairs a Descriptor with its executable Hook implementation.
type registeredHook struct {
	desc Descriptor
	hook Hook
}

// triggerMatches reports whether triggers (from a Descriptor) cover method.
func triggerMatches(triggers []string, method string) bool {
	for _, t := range triggers {
		if t == "*" || t == method {
			return true
		}
	}
	return false
}

// DefaultHookBudget is the per-hook time budget absent a manifest override.
const DefaultHookBudget = 2 * time.Second

// Pipeline holds the immutable set of hooks registered at startup, indexed
// by phase and sorted by priority then id within each phase.
type Pipeline struct {
	byPhase map[Phase][]registeredHook
	budget  time.Duration
}

// New builds an empty Pipeline. Register hooks with Register before Run.
func New() *Pipeline {
	return &Pipeline{
		byPhase: make(map[Phase][]registeredHook),
		budget:  DefaultHookBudget,
	}
}

// WithBudget overrides the per-hook execution time budget.
func (p *Pipeline) WithBudget(d time.Duration) *Pipeline {
	p.budget = d
	return p
}

// Register adds hook under desc to the pipeline. Must be called before the
// pipeline starts serving traffic; the registered set is treated as
// immutable for the lifetime of a run.
func (p *Pipeline) Register(desc Descriptor, hook Hook) {
	p.byPhase[desc.Phase] = append(p.byPhase[desc.Phase], registeredHook{desc: desc, hook: hook})
}

// Freeze sorts every phase's hook list by ascending priority, ties broken
// by stable descriptor id. Call once after all Register calls.
func (p *Pipeline) Freeze() {
	for phase, hooks := range p.byPhase {
		sorted := make([]registeredHook, len(hooks))
		copy(sorted, hooks)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].desc.Priority != sorted[j].desc.Priority {
				return sorted[i].desc.Priority < sorted[j].desc.Priority
			}
			return sorted[i].desc.id() < sorted[j].desc.id()
		})
		p.byPhase[phase] = sorted
	}
}

// id is a tiny accessor kept on Descriptor to make the tie-break read cleanly
// at the Freeze call site above.
func (d Descriptor) id() string { return d.ID }

// Run executes every hook registered for phase whose triggers match
// payload.Method, in priority order, mutating payload in place. It
// returns the same payload for convenience chaining.
func (p *Pipeline) Run(ctx context.Context, phase Phase, payload *Payload) *Payload {
	for _, rh := range p.byPhase[phase] {
		if !triggerMatches(rh.desc.Triggers, payload.Method) {
			continue
		}
		p.runOne(ctx, rh, payload)
	}
	return payload
}

// runOne invokes a single hook under the pipeline's time budget, converting
// a timeout or a non-critical panic/error into a recorded violation rather
// than letting it escape the pipeline.
func (p *Pipeline) runOne(ctx context.Context, rh registeredHook, payload *Payload) {
	hookCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- panicToError(r)
			}
		}()
		done <- rh.hook.Run(hookCtx, payload)
	}()

	select {
	case err := <-done:
		if err == nil {
			return
		}
		p.recordFailure(rh, payload, "hook_error", err.Error())
	case <-hookCtx.Done():
		p.recordFailure(rh, payload, "hook_timeout", "exceeded time budget")
	}
}

func (p *Pipeline) recordFailure(rh registeredHook, payload *Payload, kind, detail string) {
	payload.AddViolation(Violation{Kind: kind, HookID: rh.desc.ID, Detail: detail})
	if rh.desc.Critical {
		payload.Halt = true
	}
}

type panicError struct{ v any }

func (e panicError) Error() string {
	if err, ok := e.v.(error); ok {
		return err.Error()
	}
	return "hook panicked"
}

func panicToError(v any) error { return panicError{v: v} }
