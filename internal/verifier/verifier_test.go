package verifier

import (
	"testing"
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/txn"
)

func makeView(alice, bob money.Money) PreStateView {
	agents := map[ids.AgentId]AgentSnapshot{
		"alice": {Balance: alice, DebtCeiling: money.MustParse("-100.00"), Exists: true},
		"bob":   {Balance: bob, DebtCeiling: money.MustParse("-100.00"), Exists: true},
	}
	bank := AgentSnapshot{Balance: money.MustParse("10000.00"), Exists: true}
	return NewPreStateView(agents, bank, time.Unix(1000, 0), map[ids.TxId]bool{})
}

func makeTx(t *testing.T, from, to ids.AgentId, amount money.Money, kind txn.Kind, ts time.Time) txn.Transaction {
	t.Helper()
	tx := txn.Transaction{
		TxID:      ids.NewTxId(),
		Timestamp: ts,
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
	}
	return txn.WithChecksum(tx)
}

func TestVerify_AcceptsBalancedTransfer(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "bob", money.MustParse("10.00"), txn.KindTransfer, time.Unix(1001, 0))

	result := New().Verify(tx, view)
	if !result.Ok {
		t.Fatalf("expected acceptance, got violation %q: %s", result.Violation, result.Detail)
	}
}

func TestVerify_RejectsTamperedChecksum(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "bob", money.MustParse("10.00"), txn.KindTransfer, time.Unix(1001, 0))
	tx.Checksum = "deadbeef"

	result := New().Verify(tx, view)
	if result.Ok || result.Violation != ViolationChecksum {
		t.Fatalf("expected checksum violation, got %+v", result)
	}
}

func TestVerify_RejectsDebtCeilingBreach(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "bob", money.MustParse("200.00"), txn.KindTransfer, time.Unix(1001, 0))

	result := New().Verify(tx, view)
	if result.Ok || result.Violation != ViolationDebtCeiling {
		t.Fatalf("expected debt_ceiling violation, got %+v", result)
	}
}

func TestVerify_RejectsNonMonotonicTimestamp(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "bob", money.MustParse("10.00"), txn.KindTransfer, time.Unix(500, 0))

	result := New().Verify(tx, view)
	if result.Ok || result.Violation != ViolationMonotonicTime {
		t.Fatalf("expected monotonic_time violation, got %+v", result)
	}
}

func TestVerify_RejectsDuplicateTxID(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "bob", money.MustParse("10.00"), txn.KindTransfer, time.Unix(1001, 0))
	view.knownTxIDs[tx.TxID] = true

	result := New().Verify(tx, view)
	if result.Ok || result.Violation != ViolationDuplicateTxID {
		t.Fatalf("expected duplicate_tx_id violation, got %+v", result)
	}
}

func TestVerify_BurnRequiresRecognizedSink(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "bob", money.MustParse("10.00"), txn.KindBondForfeit, time.Unix(1001, 0))

	result := New().Verify(tx, view)
	if result.Ok || result.Violation != ViolationConservation {
		t.Fatalf("expected conservation violation for burn to non-sink, got %+v", result)
	}
}

func TestVerify_AcceptsBurnToRecognizedSink(t *testing.T) {
	agents := map[ids.AgentId]AgentSnapshot{
		"alice":      {Balance: money.MustParse("50.00"), DebtCeiling: money.MustParse("-100.00"), Exists: true},
		ids.BurnSink: {Balance: money.Zero(), DebtCeiling: money.Zero(), Exists: true},
	}
	bank := AgentSnapshot{Balance: money.MustParse("10000.00"), Exists: true}
	view := NewPreStateView(agents, bank, time.Unix(1000, 0), map[ids.TxId]bool{})

	tx := makeTx(t, "alice", ids.BurnSink, money.MustParse("10.00"), txn.KindBondForfeit, time.Unix(1001, 0))

	result := New().Verify(tx, view)
	if !result.Ok {
		t.Fatalf("expected acceptance of burn to recognized sink, got %+v", result)
	}
}

func TestVerify_RejectsUnknownAgent(t *testing.T) {
	view := makeView(money.MustParse("50.00"), money.MustParse("50.00"))
	tx := makeTx(t, "alice", "carol", money.MustParse("10.00"), txn.KindTransfer, time.Unix(1001, 0))

	result := New().Verify(tx, view)
	if result.Ok || result.Violation != ViolationSolvency {
		t.Fatalf("expected solvency violation for unknown destination, got %+v", result)
	}
}
