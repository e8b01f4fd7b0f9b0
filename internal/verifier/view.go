package verifier

import (
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
)

// AgentSnapshot is the minimal per-agent state the Verifier needs to check
// a proposed transaction: balance, escrow, debt ceiling, and whether the
// agent exists. Nothing else about an agent is relevant to invariant checking.
type AgentSnapshot struct {
	Balance     money.Money
	Escrow      money.Money
	DebtCeiling money.Money
	Exists      bool
}

// PreStateView is a read-only summary of ledger state immediately before a
// proposed transaction, covering only what verify needs: the two affected
// agents (or system_bank standing in for either), the last committed
// transaction's timestamp, and whether a given tx_id already appears in
// the log. The Ledger builds this view from its own state without handing
// the Verifier a live, mutable reference.
type PreStateView struct {
	Agents          map[ids.AgentId]AgentSnapshot
	SystemBank      AgentSnapshot
	LastTxTimestamp time.Time
	knownTxIDs      map[ids.TxId]bool
}

// NewPreStateView builds a view from its constituent parts. knownTxIDs may
// be nil, in which case HasTxID always reports false.
func NewPreStateView(agents map[ids.AgentId]AgentSnapshot, bank AgentSnapshot, lastTxTimestamp time.Time, knownTxIDs map[ids.TxId]bool) PreStateView {
	return PreStateView{
		Agents:          agents,
		SystemBank:      bank,
		LastTxTimestamp: lastTxTimestamp,
		knownTxIDs:      knownTxIDs,
	}
}

// HasTxID reports whether id already appears in the committed log.
func (v PreStateView) HasTxID(id ids.TxId) bool {
	if v.knownTxIDs == nil {
		return false
	}
	return v.knownTxIDs[id]
}

// Snapshot looks up an agent snapshot by id, falling back to the system
// bank's snapshot for the reserved bank id.
func (v PreStateView) Snapshot(id ids.AgentId) (AgentSnapshot, bool) {
	if id == ids.SystemBank {
		return v.SystemBank, true
	}
	s, ok := v.Agents[id]
	return s, ok
}
