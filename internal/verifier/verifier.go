// Package verifier implements Citadel, the pure pre-commit invariant
// checker every proposed transaction must pass before the Ledger applies
// it. It performs no I/O and holds no mutable state beyond the
// PreStateView handed to it for a single call.
package verifier

import (
	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/txn"
)

// Violation names the invariant a transaction failed.
type Violation string

const (
	ViolationConservation  Violation = "conservation"
	ViolationSolvency      Violation = "solvency"
	ViolationDebtCeiling   Violation = "debt_ceiling"
	ViolationChecksum      Violation = "checksum"
	ViolationMonotonicTime Violation = "monotonic_time"
	ViolationDuplicateTxID Violation = "duplicate_tx_id"
)

// Result is the outcome of a verify call. A zero Result (Ok true) means
// the transaction may be committed as-is.
type Result struct {
	Ok        bool
	Violation Violation
	Detail    string
}

func ok() Result { return Result{Ok: true} }

func reject(v Violation, detail string) Result {
	return Result{Ok: false, Violation: v, Detail: detail}
}

// Verifier checks a proposed transaction against a snapshot of the state
// it would be committed on top of. It carries no fields: every call is
// independent and side-effect free.
type Verifier struct{}

// New constructs a Verifier. It takes no arguments because the type is
// stateless; it exists so call sites can depend on an interface rather
// than a bare function, matching how the Ledger depends on its Store.
func New() *Verifier {
	return &Verifier{}
}

// Verify runs the eight-step algorithm against tx given pre.
func (v *Verifier) Verify(tx txn.Transaction, pre PreStateView) Result {
	// 1. Recompute checksum over canonicalized fields; compare.
	if !txn.VerifyChecksum(tx) {
		return reject(ViolationChecksum, "recomputed checksum does not match tx.Checksum")
	}

	// 2. Determine tx kind class: burn vs. transfer.
	if !tx.Kind.Valid() {
		return reject(ViolationChecksum, "unrecognized transaction kind")
	}
	isBurn := tx.Kind.IsBurn()

	fromSnap, fromOK := pre.Snapshot(tx.From)
	toSnap, toOK := pre.Snapshot(tx.To)
	if !fromOK || !fromSnap.Exists {
		return reject(ViolationSolvency, "source agent "+string(tx.From)+" does not exist")
	}
	if !toOK || !toSnap.Exists {
		return reject(ViolationSolvency, "destination agent "+string(tx.To)+" does not exist")
	}

	// 3. Compute post-state sum of balances + escrow for affected agents.
	preSum := fromSnap.Balance.Add(fromSnap.Escrow).Add(toSnap.Balance).Add(toSnap.Escrow)
	postFromBalance := fromSnap.Balance.Sub(tx.Amount)
	postToBalance := toSnap.Balance.Add(tx.Amount)

	if isBurn {
		// 5. For burn kinds: the sink sits outside circulating supply, so
		// its balance never re-enters the sum. post-sum == pre-sum - amount,
		// and the sink is a recognized burn sink.
		if tx.To != ids.BurnSink {
			return reject(ViolationConservation, "burn kind "+string(tx.Kind)+" must settle to the recognized burn sink")
		}
		postSum := postFromBalance.Add(fromSnap.Escrow)
		expected := preSum.Sub(tx.Amount)
		if postSum.Cmp(expected) != 0 {
			return reject(ViolationConservation, "burn did not reduce circulating supply by exactly amount")
		}
	} else {
		// 4. For transfer kinds: assert post-sum == pre-sum.
		postSum := postFromBalance.Add(fromSnap.Escrow).Add(postToBalance).Add(toSnap.Escrow)
		if postSum.Cmp(preSum) != 0 {
			return reject(ViolationConservation, "post-commit sum of balances and escrow diverges from pre-commit sum")
		}
	}

	// 6. Assert post-state of every affected agent's balance >= debt_ceiling.
	if postFromBalance.Cmp(fromSnap.DebtCeiling) < 0 {
		return reject(ViolationDebtCeiling, "source agent "+string(tx.From)+" would breach its debt ceiling")
	}
	if postToBalance.Cmp(toSnap.DebtCeiling) < 0 {
		return reject(ViolationDebtCeiling, "destination agent "+string(tx.To)+" would breach its debt ceiling")
	}

	// 7. Assert tx timestamp >= last logged tx timestamp.
	if tx.Timestamp.Before(pre.LastTxTimestamp) {
		return reject(ViolationMonotonicTime, "transaction timestamp precedes the last committed transaction")
	}

	// 8. Assert tx id is not present in the log index.
	if pre.HasTxID(tx.TxID) {
		return reject(ViolationDuplicateTxID, "tx_id already present in the transaction log")
	}

	return ok()
}

