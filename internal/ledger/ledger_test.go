package ledger

import (
	"context"
	"os"
	"testing"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/txn"
	"github.com/apexnet/apexcore/internal/verifier"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store := NewMemoryStore(SystemBank{Balance: money.MustParse("10000.00")})
	return New(store, verifier.New(), nil)
}

func TestLedger_GenesisTransfer(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.CreateAgent(ctx, "agent_a", "Agent A", TierNovice); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	bal, err := l.GetBalance("agent_a")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.String() != "100.00" {
		t.Errorf("expected agent balance 100.00, got %s", bal)
	}

	bankBal, err := l.GetBalance(ids.SystemBank)
	if err != nil {
		t.Fatalf("GetBalance(bank) failed: %v", err)
	}
	if bankBal.String() != "9900.00" {
		t.Errorf("expected bank balance 9900.00, got %s", bankBal)
	}

	log := l.ListTransactions()
	if len(log) != 1 || log[0].Kind != txn.KindGenesis {
		t.Fatalf("expected one GENESIS transaction, got %+v", log)
	}
	if !txn.VerifyChecksum(log[0]) {
		t.Error("genesis transaction fails its own checksum")
	}
}

func TestLedger_DuplicateAgentRejected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.CreateAgent(ctx, "agent_a", "Agent A", TierNovice); err != nil {
		t.Fatalf("first CreateAgent failed: %v", err)
	}
	if _, err := l.CreateAgent(ctx, "agent_a", "Agent A", TierNovice); err == nil {
		t.Fatal("expected second CreateAgent to fail")
	}
}

func TestLedger_TransferConservesBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.CreateAgent(ctx, "agent_a", "A", TierNovice)
	l.CreateAgent(ctx, "agent_b", "B", TierNovice)

	if _, err := l.Transfer(ctx, "agent_a", "agent_b", money.MustParse("10.00"), txn.KindTransfer, ""); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	balA, _ := l.GetBalance("agent_a")
	balB, _ := l.GetBalance("agent_b")
	if balA.String() != "90.00" {
		t.Errorf("expected agent_a balance 90.00, got %s", balA)
	}
	if balB.String() != "110.00" {
		t.Errorf("expected agent_b balance 110.00, got %s", balB)
	}
}

func TestLedger_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.CreateAgent(ctx, "agent_a", "A", TierNovice)
	l.CreateAgent(ctx, "agent_b", "B", TierNovice)

	_, err := l.Transfer(ctx, "agent_a", "agent_b", money.MustParse("500.00"), txn.KindTransfer, "")
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}

	balA, _ := l.GetBalance("agent_a")
	if balA.String() != "100.00" {
		t.Errorf("expected agent_a balance unchanged at 100.00, got %s", balA)
	}
	if len(l.ListTransactions()) != 2 { // two GENESIS transactions only
		t.Errorf("expected no transaction appended on rejection, got %d entries", len(l.ListTransactions()))
	}
}

func TestLedger_TransferAtExactBalanceLeavesZero(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.CreateAgent(ctx, "agent_a", "A", TierNovice)
	l.CreateAgent(ctx, "agent_b", "B", TierNovice)

	if _, err := l.Transfer(ctx, "agent_a", "agent_b", money.MustParse("100.00"), txn.KindTransfer, ""); err != nil {
		t.Fatalf("expected exact-balance transfer to succeed: %v", err)
	}
	balA, _ := l.GetBalance("agent_a")
	if !balA.IsZero() {
		t.Errorf("expected agent_a balance zero, got %s", balA)
	}

	// agent_a's debt ceiling is -100.00, so it may still go negative here.
	if _, err := l.Transfer(ctx, "agent_a", "agent_b", money.MustParse("50.00"), txn.KindTransfer, ""); err != nil {
		t.Fatalf("expected transfer within debt ceiling to succeed: %v", err)
	}

	// One more cent past the ceiling must be rejected.
	if _, err := l.Transfer(ctx, "agent_a", "agent_b", money.MustParse("50.01"), txn.KindTransfer, ""); err == nil {
		t.Fatal("expected transfer breaching debt ceiling to fail")
	}
}

func TestFileStore_RecoversAfterRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenFileStore(dir, SystemBank{Balance: money.MustParse("10000.00")})
	if err != nil {
		t.Fatalf("OpenFileStore failed: %v", err)
	}
	l := New(store, verifier.New(), nil)
	ctx := context.Background()

	l.CreateAgent(ctx, "agent_a", "A", TierNovice)
	l.CreateAgent(ctx, "agent_b", "B", TierNovice)
	if _, err := l.Transfer(ctx, "agent_a", "agent_b", money.MustParse("25.00"), txn.KindTransfer, ""); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulate a restart: reopen over the same directory, no snapshot was
	// ever taken, so recovery must replay the whole WAL.
	store2, err := OpenFileStore(dir, SystemBank{Balance: money.MustParse("10000.00")})
	if err != nil {
		t.Fatalf("reopen OpenFileStore failed: %v", err)
	}
	defer store2.Close()
	l2 := New(store2, verifier.New(), nil)

	balA, err := l2.GetBalance("agent_a")
	if err != nil {
		t.Fatalf("GetBalance after recovery failed: %v", err)
	}
	if balA.String() != "75.00" {
		t.Errorf("expected recovered agent_a balance 75.00, got %s", balA)
	}
	if len(l2.ListTransactions()) != 3 {
		t.Errorf("expected 3 recovered transactions, got %d", len(l2.ListTransactions()))
	}
}

func TestFileStore_SnapshotTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenFileStore(dir, SystemBank{Balance: money.MustParse("10000.00")})
	if err != nil {
		t.Fatalf("OpenFileStore failed: %v", err)
	}
	l := New(store, verifier.New(), nil)
	ctx := context.Background()
	l.CreateAgent(ctx, "agent_a", "A", TierNovice)

	if err := l.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	info, err := os.Stat(dir + "/" + walFileName)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected wal truncated to 0 bytes after snapshot, got %d", info.Size())
	}
	l.Close()
}

func TestFileStore_LockHeldRejectsSecondOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenFileStore(dir, SystemBank{Balance: money.MustParse("10000.00")})
	if err != nil {
		t.Fatalf("OpenFileStore failed: %v", err)
	}
	defer store.Close()

	_, err = OpenFileStore(dir, SystemBank{Balance: money.MustParse("10000.00")})
	if err != ErrLockHeld {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}
