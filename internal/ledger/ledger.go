// Package ledger implements the Master Compensation Engine: the sole
// authority for persisting agent and system_bank balance changes. It
// guarantees durability before returning success and rejects any mutation
// the Verifier does not approve.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/apexnet/apexcore/internal/apexerr"
	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/logging"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/traces"
	"github.com/apexnet/apexcore/internal/txn"
	"github.com/apexnet/apexcore/internal/verifier"
)

// InitialBalance is the default APX a newly created agent receives,
// debited from system_bank.
var InitialBalance = money.MustParse("100.00")

// DefaultDebtCeiling is the default debt ceiling assigned to a newly
// created agent.
var DefaultDebtCeiling = money.MustParse("-100.00")

// bankDebtCeiling bounds system_bank far below any realistic balance so
// the solvency check never spuriously fires against it.
var bankDebtCeiling = money.FromCents(-1 << 40)

// Mirror is the optional secondary durable copy of committed transactions
// the Ledger writes to after a commit succeeds against the Store. It is never consulted for correctness: the
// Store's WAL and snapshot remain the sole source of truth.
type Mirror interface {
	MirrorTransaction(ctx context.Context, tx txn.Transaction) error
}

// Ledger is the Master Compensation Engine. It owns no storage of its own:
// all durability is delegated to a Store, and all invariant checking to a
// Verifier, injected at construction per the no-singletons design rule.
type Ledger struct {
	store    Store
	verifier *verifier.Verifier
	mirror   Mirror // may be nil

	debtCeilingDefault money.Money
}

// New constructs a Ledger over store and v. mirror may be nil.
func New(store Store, v *verifier.Verifier, mirror Mirror) *Ledger {
	return &Ledger{
		store:              store,
		verifier:           v,
		mirror:             mirror,
		debtCeilingDefault: DefaultDebtCeiling,
	}
}

// WithDebtCeilingDefault overrides the debt ceiling new agents receive.
func (l *Ledger) WithDebtCeilingDefault(ceiling money.Money) *Ledger {
	l.debtCeilingDefault = ceiling
	return l
}

// CreateAgent registers a new agent, seeding its financials and debiting
// INITIAL_BALANCE from system_bank via an explicit GENESIS transaction.
func (l *Ledger) CreateAgent(ctx context.Context, id ids.AgentId, displayName string, tier Tier) (ids.TxId, error) {
	ctx, span := traces.StartSpan(ctx, "ledger.CreateAgent", traces.AgentID(string(id)))
	defer span.End()
	done := observeOp("create_agent")

	if id.IsReserved() {
		done("rejected")
		return "", apexerr.New(apexerr.KindRequest, apexerr.CodeInvalidParams, "cannot register a reserved agent id", nil)
	}

	bank := l.store.LoadBank()
	if bank.Balance.Cmp(InitialBalance) < 0 {
		done("rejected")
		return "", apexerr.InsufficientFunds(string(ids.SystemBank), InitialBalance.String(), bank.Balance.String())
	}

	genesis := txn.WithChecksum(txn.Transaction{
		TxID:      ids.NewTxId(),
		Timestamp: time.Now().UTC(),
		From:      ids.SystemBank,
		To:        id,
		Amount:    InitialBalance,
		Kind:      txn.KindGenesis,
	})

	rec := AgentRecord{
		ID: id,
		Financials: Financials{
			Balance:     InitialBalance,
			DebtCeiling: l.debtCeilingDefault,
		},
		Metadata: AgentMetadata{
			DisplayName: displayName,
			Tier:        tier,
			Active:      true,
			CreatedAt:   time.Now().UTC(),
		},
	}

	if err := l.store.CreateAgent(rec, genesis); err != nil {
		done("rejected")
		if err == ErrAlreadyExists {
			return "", apexerr.New(apexerr.KindRequest, apexerr.CodeInvalidParams, "agent already exists", map[string]any{"agent": string(id)})
		}
		return "", apexerr.Persistence("create_agent", err)
	}

	l.mirrorAsync(ctx, genesis)
	AgentCount.Inc()
	BankBalance.Set(bankBalanceFloat(l.store.LoadBank()))
	done("ok")
	logging.L(ctx).Info("agent created", "agent_id", id, "tier", tier)
	return genesis.TxID, nil
}

// GetBalance returns id's current balance.
func (l *Ledger) GetBalance(id ids.AgentId) (money.Money, error) {
	if id == ids.SystemBank {
		return l.store.LoadBank().Balance, nil
	}
	rec, ok := l.store.LoadAgent(id)
	if !ok {
		return money.Money{}, apexerr.NotFound("agent " + string(id))
	}
	return rec.Financials.Balance, nil
}

// GetAgent returns the full record for id.
func (l *Ledger) GetAgent(id ids.AgentId) (AgentRecord, error) {
	rec, ok := l.store.LoadAgent(id)
	if !ok {
		return AgentRecord{}, apexerr.NotFound("agent " + string(id))
	}
	return rec, nil
}

// Transfer constructs, verifies, and commits a transaction moving amount
// from `from` to `to`. On any rejection, no state changes are made.
func (l *Ledger) Transfer(ctx context.Context, from, to ids.AgentId, amount money.Money, kind txn.Kind, taskRef string) (ids.TxId, error) {
	ctx, span := traces.StartSpan(ctx, "ledger.Transfer",
		traces.AgentID(string(from)), traces.Amount(amount.String()), traces.TxKind(string(kind)))
	defer span.End()
	done := observeOp("transfer")

	if amount.Sign() <= 0 {
		done("rejected")
		return "", apexerr.InvalidParams("amount must be positive")
	}
	if !kind.Valid() {
		done("rejected")
		return "", apexerr.InvalidParams("unrecognized transaction kind " + string(kind))
	}
	if kind.IsBurn() && to != ids.BurnSink {
		done("rejected")
		return "", apexerr.InvalidParams("burn kind " + string(kind) + " must settle to the recognized burn sink")
	}

	tx := txn.WithChecksum(txn.Transaction{
		TxID:      ids.NewTxId(),
		Timestamp: time.Now().UTC(),
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		TaskRef:   taskRef,
	})

	view := l.buildPreStateView(from, to, tx.TxID)
	result := l.verifier.Verify(tx, view)
	if !result.Ok {
		done("rejected")
		VerifierRejections.WithLabelValues(string(result.Violation)).Inc()
		switch result.Violation {
		case "solvency", "debt_ceiling":
			return "", apexerr.InsufficientFunds(string(from), amount.String(), view.Agents[from].Balance.String())
		default:
			return "", apexerr.InvariantViolation(string(result.Violation) + ": " + result.Detail)
		}
	}

	if err := l.store.Commit(tx); err != nil {
		done("rejected")
		return "", apexerr.Persistence("transfer", err)
	}

	l.mirrorAsync(ctx, tx)
	BankBalance.Set(bankBalanceFloat(l.store.LoadBank()))
	done("ok")
	logging.L(ctx).Info("transaction committed", "tx_id", tx.TxID, "kind", kind, "from", from, "to", to, "amount", amount.String())
	return tx.TxID, nil
}

// buildPreStateView assembles the minimal PreStateView the Verifier needs
// to check a transaction between from and to, including whether candidate
// already appears in the committed log.
func (l *Ledger) buildPreStateView(from, to ids.AgentId, candidate ids.TxId) verifier.PreStateView {
	agents := make(map[ids.AgentId]verifier.AgentSnapshot, 2)
	for _, id := range []ids.AgentId{from, to} {
		if id == ids.SystemBank {
			continue
		}
		if rec, ok := l.store.LoadAgent(id); ok {
			agents[id] = verifier.AgentSnapshot{
				Balance:     rec.Financials.Balance,
				Escrow:      rec.Financials.Escrow,
				DebtCeiling: rec.Financials.DebtCeiling,
				Exists:      true,
			}
		} else if id == ids.BurnSink || id == ids.SystemTreasury {
			agents[id] = verifier.AgentSnapshot{Exists: true}
		}
	}
	bank := l.store.LoadBank()
	bankSnap := verifier.AgentSnapshot{
		Balance:     bank.Balance,
		DebtCeiling: bankDebtCeiling, // the bank has no practical debt ceiling
		Exists:      true,
	}

	txIndex := map[ids.TxId]bool{candidate: l.store.HasTxID(candidate)}
	return verifier.NewPreStateView(agents, bankSnap, l.store.LastTxTimestamp(), txIndex)
}

// ApplyPerformanceUpdate mutates only the non-financial fields of id's
// record; it must never alter balances.
func (l *Ledger) ApplyPerformanceUpdate(ctx context.Context, id ids.AgentId, delta PerformanceDelta) error {
	done := observeOp("apply_performance_update")
	if err := l.store.ApplyPerformanceUpdate(id, delta); err != nil {
		done("rejected")
		if err == ErrNotFound {
			return apexerr.NotFound("agent " + string(id))
		}
		return apexerr.Persistence("apply_performance_update", err)
	}
	done("ok")
	return nil
}

// LedgerView is a read-only snapshot of the whole ledger, returned by
// Snapshot. It is a point-in-time copy, not a live view: mutations after
// Snapshot returns do not retroactively change it.
type LedgerView struct {
	Metadata   LedgerMetadata
	Bank       SystemBank
	Agents     []AgentRecord
	LogLength  int
	LastTxID   ids.TxId
}

// Snapshot returns a read-only copy of the whole ledger.
func (l *Ledger) Snapshot() LedgerView {
	agents := l.store.AllAgents()
	log := l.store.TransactionLog()
	var lastTxID ids.TxId
	if len(log) > 0 {
		lastTxID = log[len(log)-1].TxID
	}
	return LedgerView{
		Bank:      l.store.LoadBank(),
		Agents:    sortedAgentRecords(agents),
		LogLength: len(log),
		LastTxID:  lastTxID,
	}
}

// ListTransactions returns the committed log in commit order. Pagination
// is left to the caller (see internal/pagination); this returns the full
// in-memory log, whose length neither Store implementation caps.
func (l *Ledger) ListTransactions() []txn.Transaction {
	return l.store.TransactionLog()
}

// Checkpoint forces a durable snapshot.
func (l *Ledger) Checkpoint() error {
	err := l.store.Snapshot()
	if err != nil {
		SnapshotsTotal.WithLabelValues("failed").Inc()
		return apexerr.Persistence("snapshot", err)
	}
	SnapshotsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close releases the Store's resources (file lock, open handles).
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) mirrorAsync(ctx context.Context, tx txn.Transaction) {
	if l.mirror == nil {
		return
	}
	go func() {
		mirrorCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.mirror.MirrorTransaction(mirrorCtx, tx); err != nil {
			slog.Default().Warn("postgres mirror write failed", "tx_id", tx.TxID, "error", err)
		}
	}()
}

func bankBalanceFloat(bank SystemBank) float64 {
	cents := bank.Balance.Cents()
	return float64(cents) / 100.0
}
