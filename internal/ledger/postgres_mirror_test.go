package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/testutil"
	"github.com/apexnet/apexcore/internal/txn"
)

func TestPostgresMirror_MirrorAndReconcile(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	mirror := &PostgresMirror{db: db}

	tx := txn.Transaction{
		TxID:      ids.NewTxId(),
		Timestamp: time.Now().UTC(),
		From:      ids.SystemBank,
		To:        ids.AgentId("agent_pg_test"),
		Amount:    money.MustParse("5.00"),
		Kind:      txn.KindGenesis,
		Checksum:  "test-checksum",
	}

	ctx := context.Background()
	if err := mirror.MirrorTransaction(ctx, tx); err != nil {
		t.Fatalf("MirrorTransaction failed: %v", err)
	}
	// Idempotent re-write must not error or double-insert.
	if err := mirror.MirrorTransaction(ctx, tx); err != nil {
		t.Fatalf("MirrorTransaction (retry) failed: %v", err)
	}

	missing, err := mirror.Reconcile(ctx, []txn.Transaction{tx})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing transactions after mirroring, got %v", missing)
	}

	unmirrored := txn.Transaction{TxID: ids.NewTxId()}
	missing, err = mirror.Reconcile(ctx, []txn.Transaction{tx, unmirrored})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != unmirrored.TxID {
		t.Errorf("expected exactly unmirrored tx %s reported missing, got %v", unmirrored.TxID, missing)
	}
}
