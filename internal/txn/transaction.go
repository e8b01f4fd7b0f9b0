// Package txn defines the Transaction record shared by the Ledger and the
// Verifier: its shape, its kind taxonomy, and the canonicalization scheme
// its checksum is computed over. It has no dependency on either consumer
// so both can import it without a cycle.
package txn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
)

// Kind enumerates the transaction classes the ledger recognizes.
type Kind string

const (
	KindTransfer    Kind = "TRANSFER"
	KindReward      Kind = "REWARD"
	KindTax         Kind = "TAX"
	KindBondLock    Kind = "BOND_LOCK"
	KindBondReturn  Kind = "BOND_RETURN"
	KindBondForfeit Kind = "BOND_FORFEIT"
	KindRoyalty     Kind = "ROYALTY"
	KindPenalty     Kind = "PENALTY"
	KindGenesis     Kind = "GENESIS"
)

// IsBurn reports whether kind removes APX from circulation rather than
// moving it between participants. Burn kinds settle against BurnSink and
// are exempt from the conservation invariant.
//
// PENALTY is a transfer, not a burn: the source's original ambiguity
// ("penalty removes funds, maybe to the bank, maybe destroyed") is
// resolved here as a plain transfer to system_bank. BOND_FORFEIT is the
// burn component of a forfeited bond; any portion of a forfeited bond
// that instead goes to a counterparty is issued as a separate TRANSFER,
// never folded into the same record.
func (k Kind) IsBurn() bool {
	return k == KindBondForfeit
}

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTransfer, KindReward, KindTax, KindBondLock, KindBondReturn,
		KindBondForfeit, KindRoyalty, KindPenalty, KindGenesis:
		return true
	default:
		return false
	}
}

// Transaction is the append-only record the Ledger commits and the
// Verifier checks. Checksum is the SHA-256 digest of every other field,
// canonicalized; it is computed by Checksum and compared, never trusted
// blindly from an untrusted proposer.
type Transaction struct {
	TxID      ids.TxId
	Timestamp time.Time
	From      ids.AgentId
	To        ids.AgentId
	Amount    money.Money
	Kind      Kind
	TaskRef   string
	Checksum  string
}

// Canonicalize renders tx's fields (excluding Checksum) as a stable string:
// sorted field names, fixed key=value pairs, no whitespace variance. This
// is the exact byte sequence Checksum hashes.
func Canonicalize(tx Transaction) string {
	fields := map[string]string{
		"tx_id":     string(tx.TxID),
		"timestamp": tx.Timestamp.UTC().Format(time.RFC3339Nano),
		"from":      string(tx.From),
		"to":        string(tx.To),
		"amount":    tx.Amount.String(),
		"kind":      string(tx.Kind),
		"task_ref":  tx.TaskRef,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%s=%s", k, fields[k])
	}
	return b.String()
}

// Checksum computes the SHA-256 digest of tx's canonicalized fields,
// hex-encoded.
func Checksum(tx Transaction) string {
	sum := sha256.Sum256([]byte(Canonicalize(tx)))
	return hex.EncodeToString(sum[:])
}

// WithChecksum returns a copy of tx with Checksum populated.
func WithChecksum(tx Transaction) Transaction {
	tx.Checksum = Checksum(tx)
	return tx
}

// VerifyChecksum reports whether tx.Checksum matches its recomputed digest.
func VerifyChecksum(tx Transaction) bool {
	return tx.Checksum == Checksum(tx)
}
