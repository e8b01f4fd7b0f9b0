// Package builtins implements the eight built-in hooks referenced by the
// default hook manifest: fiscal_context, memory_context, static_analysis,
// resource_meter, permission_check, sanitize_output, retry_transient, and
// audit_emit.
package builtins

import (
	"context"
	"fmt"

	"github.com/apexnet/apexcore/internal/hooks"
	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/ledger"
)

// BalanceReader is the narrow ledger surface fiscal_context needs: a
// read-only balance and agent-record lookup. Satisfied by *ledger.Ledger.
type BalanceReader interface {
	GetAgent(id ids.AgentId) (ledger.AgentRecord, error)
}

// FiscalContext is a PRE_PROMPT/PRE_TOOL hook that stamps the requesting
// agent's current balance, debt ceiling, and tier into payload.Context so
// downstream hooks and the handler can price the request without a second
// ledger round trip.
type FiscalContext struct {
	ledger BalanceReader
}

// NewFiscalContext builds the hook against a ledger read surface.
func NewFiscalContext(ledger BalanceReader) *FiscalContext {
	return &FiscalContext{ledger: ledger}
}

func (h *FiscalContext) ID() string { return "fiscal_context" }

func (h *FiscalContext) Run(ctx context.Context, payload *hooks.Payload) error {
	if payload.AgentID == "" {
		return nil
	}
	agent, err := h.ledger.GetAgent(ids.AgentId(payload.AgentID))
	if err != nil {
		return fmt.Errorf("fiscal_context: %w", err)
	}
	payload.Context["balance"] = agent.Financials.Balance.String()
	payload.Context["debt_ceiling"] = agent.Financials.DebtCeiling.String()
	payload.Context["tier"] = string(agent.Metadata.Tier)
	payload.Context["streak"] = agent.Performance.Streak
	return nil
}
