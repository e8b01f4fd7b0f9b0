package builtins

import (
	"context"
	"fmt"

	"github.com/apexnet/apexcore/internal/apexerr"
	"github.com/apexnet/apexcore/internal/hooks"
	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/ledger"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/pricing"
)

// ResourceMeter is a PRE_TOOL hook that enforces a maximum context window
// (token estimate) per request, a debt-ceiling-aware cost ceiling, and a
// tier/complexity gate: a request whose worst-case cost would already
// exceed the agent's remaining headroom under its debt ceiling, or whose
// declared complexity outranks what the agent's tier may attempt, is
// rejected before the tool ever runs.
// Config keys: max_context_tokens (int), max_request_cost (string, APX).
type ResourceMeter struct {
	maxContextTokens int
	maxRequestCost   money.Money
	tiers            BalanceReader
}

// NewResourceMeterFromConfig builds a ResourceMeter from manifest config.
// tiers is consulted for the tier/complexity gate; a nil tiers disables
// that check (useful in tests that exercise only the token/cost ceilings).
func NewResourceMeterFromConfig(tiers BalanceReader, cfg map[string]any) (*ResourceMeter, error) {
	max := 128000
	if v, ok := cfg["max_context_tokens"].(float64); ok {
		max = int(v)
	}
	maxCost := money.MustParse("1000.00")
	if s, ok := cfg["max_request_cost"].(string); ok {
		parsed, valid := money.Parse(s)
		if !valid {
			return nil, fmt.Errorf("resource_meter: invalid max_request_cost %q", s)
		}
		maxCost = parsed
	}
	return &ResourceMeter{maxContextTokens: max, maxRequestCost: maxCost, tiers: tiers}, nil
}

func (h *ResourceMeter) ID() string { return "resource_meter" }

func (h *ResourceMeter) Run(ctx context.Context, payload *hooks.Payload) error {
	tokens := estimateTokens(payload)
	if tokens > h.maxContextTokens {
		payload.Halt = true
		payload.AddViolation(hooks.Violation{
			Kind:   "resource_exceeded",
			HookID: h.ID(),
			Detail: fmt.Sprintf("estimated %d tokens exceeds limit %d", tokens, h.maxContextTokens),
			Code:   apexerr.CodeContextWindowExceeded,
		})
		return nil
	}

	balance, ceiling, tier, hasFiscals, err := h.agentFiscals(payload)
	if err != nil {
		return fmt.Errorf("resource_meter: %w", err)
	}
	if !hasFiscals {
		return nil
	}

	headroom := balance.Sub(ceiling)
	if h.maxRequestCost.Cmp(headroom) > 0 {
		payload.Halt = true
		payload.AddViolation(hooks.Violation{
			Kind:   "debt_limit_exceeded",
			HookID: h.ID(),
			Detail: fmt.Sprintf("worst-case cost %s exceeds headroom %s under debt ceiling", h.maxRequestCost, headroom),
			Code:   apexerr.CodeDebtLimitExceeded,
		})
		return nil
	}

	complexity := pricing.Complexity(requestedComplexity(payload))
	if !pricing.TierAllows(tier, complexity) {
		payload.Halt = true
		payload.AddViolation(hooks.Violation{
			Kind:   "tier_complexity_violation",
			HookID: h.ID(),
			Detail: fmt.Sprintf("tier %q may not attempt %q complexity tasks", tier, complexity),
			Code:   apexerr.CodeTierComplexityViolation,
		})
	}
	return nil
}

// agentFiscals resolves the requesting agent's balance, debt ceiling, and
// tier. It prefers a direct lookup through tiers, since the dispatcher only
// runs the PRE_PROMPT phase (where fiscal_context stamps payload.Context)
// for methods other than tools/call; payload.Context is consulted as a
// fallback for phases where it has actually been populated.
func (h *ResourceMeter) agentFiscals(payload *hooks.Payload) (money.Money, money.Money, ledger.Tier, bool, error) {
	if h.tiers != nil && payload.AgentID != "" {
		agent, err := h.tiers.GetAgent(ids.AgentId(payload.AgentID))
		if err != nil {
			return money.Money{}, money.Money{}, "", false, err
		}
		return agent.Financials.Balance, agent.Financials.DebtCeiling, agent.Metadata.Tier, true, nil
	}

	balanceStr, hasBalance := payload.Context["balance"].(string)
	ceilingStr, hasCeiling := payload.Context["debt_ceiling"].(string)
	if !hasBalance || !hasCeiling {
		return money.Money{}, money.Money{}, "", false, nil
	}
	balance, ok1 := money.Parse(balanceStr)
	ceiling, ok2 := money.Parse(ceilingStr)
	if !ok1 || !ok2 {
		return money.Money{}, money.Money{}, "", false, nil
	}
	tierStr, _ := payload.Context["tier"].(string)
	return balance, ceiling, ledger.Tier(tierStr), true, nil
}

// requestedComplexity reads the caller-declared complexity param, defaulting
// to the lowest tier-gated class when absent.
func requestedComplexity(payload *hooks.Payload) string {
	if s, ok := payload.Params["complexity"].(string); ok && s != "" {
		return s
	}
	return string(pricing.ComplexitySimple)
}

// estimateTokens is a crude length-based estimate used for the resource
// ceiling check; the token-tax computation instead uses the token_count
// param of the tools/call request, read after the tool has run.
func estimateTokens(payload *hooks.Payload) int {
	total := 0
	for _, v := range payload.Params {
		if s, ok := v.(string); ok {
			total += len(s) / 4
		}
	}
	return total
}
