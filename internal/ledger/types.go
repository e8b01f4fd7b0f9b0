package ledger

import (
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
)

// Tier is the categorical level controlling the maximum task complexity an
// agent may attempt. Checked by pricing.TierAllows, not by the Ledger
// itself, but carried on the agent record since it is immutable metadata.
type Tier string

const (
	TierNovice      Tier = "novice"
	TierEstablished Tier = "established"
	TierAdvanced    Tier = "advanced"
	TierExpert      Tier = "expert"
	TierMaster      Tier = "master"
)

// Financials holds an agent's mutable balance-adjacent fields. Only the
// Ledger, through a committed Transaction, may change Balance, Escrow, or
// LifetimeEarnings.
type Financials struct {
	Balance          money.Money
	Escrow           money.Money
	LifetimeEarnings money.Money
	DebtCeiling      money.Money
}

// Performance holds an agent's non-financial, reputation-adjacent fields.
// apply_performance_update may change these; transfer never does.
type Performance struct {
	Streak      int
	SuccessRate float64
	Reputation  float64
	AvgEfficiency float64
}

// AgentMetadata holds descriptive, rarely-changing fields.
type AgentMetadata struct {
	DisplayName string
	Tier        Tier
	Active      bool
	CreatedAt   time.Time
}

// AgentRecord is the full per-agent record held by the Ledger. It is
// created once by CreateAgent and never deleted; agents may only be
// marked inactive.
type AgentRecord struct {
	ID          ids.AgentId
	Financials  Financials
	Performance Performance
	Metadata    AgentMetadata
}

// SystemBank tracks the reserved bank account's own balance plus running
// totals the Verifier does not need but operators do.
type SystemBank struct {
	Balance           money.Money
	TotalTaxCollected money.Money
	TotalBondsBurned  money.Money
}

// LedgerMetadata is the small header carried alongside the agent table in
// every snapshot.
type LedgerMetadata struct {
	Version            int
	Currency           string
	CreatedAt          time.Time
	LastCheckpointHash string
}

// PerformanceDelta carries the fields apply_performance_update may change.
// Each field is a pointer: nil leaves that field unchanged, and a non-nil
// pointer sets it, zero included, since streak/rate fields are equally
// valid at zero.
type PerformanceDelta struct {
	Streak        *int
	SuccessRate   *float64
	Reputation    *float64
	AvgEfficiency *float64
}
