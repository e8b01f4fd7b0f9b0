package ledger

import (
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/txn"
)

// Store is the durable backing a Ledger commits through. A Store owns the
// WAL/snapshot protocol (or, for MemoryStore, nothing durable at all) and
// presents the single critical section the Ledger's commit path runs
// inside: verify has already happened by the time Commit is called, so
// Commit itself never rejects a transaction on invariant grounds — only on
// I/O failure.
type Store interface {
	// LoadAgent returns the current record for id, or ok=false if unknown.
	LoadAgent(id ids.AgentId) (AgentRecord, bool)

	// LoadBank returns the current system_bank record.
	LoadBank() SystemBank

	// AllAgents returns every agent record, keyed by id. Callers must not
	// mutate the returned map.
	AllAgents() map[ids.AgentId]AgentRecord

	// LastTxTimestamp returns the timestamp of the most recently committed
	// transaction, or the zero time if none has been committed yet.
	LastTxTimestamp() time.Time

	// HasTxID reports whether id already appears in the committed log.
	HasTxID(id ids.TxId) bool

	// TransactionLog returns the full committed log in commit order.
	// Callers must not mutate the returned slice.
	TransactionLog() []txn.Transaction

	// CreateAgent durably creates a new agent record and debits
	// INITIAL_BALANCE from system_bank as a single atomic unit. Returns
	// ErrAlreadyExists if id is taken.
	CreateAgent(rec AgentRecord, genesisTx txn.Transaction) error

	// Commit durably appends tx to the WAL, then applies its balance
	// delta to the in-memory agents/bank state and appends it to the
	// transaction log. The caller (Ledger) has already run tx through the
	// Verifier; Commit does not re-check invariants.
	Commit(tx txn.Transaction) error

	// ApplyPerformanceUpdate mutates only the non-financial fields of an
	// agent record.
	ApplyPerformanceUpdate(id ids.AgentId, delta PerformanceDelta) error

	// Snapshot forces a durable checkpoint: write the whole state to a
	// temp file, fsync, rename over the live snapshot, then truncate the
	// WAL. A no-op (returns nil) for stores with no durable backing.
	Snapshot() error

	// Close releases any held resources (file locks, open handles).
	Close() error
}

// ErrAlreadyExists is returned by CreateAgent when id is already present.
var ErrAlreadyExists = storeError("agent already exists")

// ErrNotFound is returned when an operation references an unknown agent.
var ErrNotFound = storeError("agent not found")

type storeError string

func (e storeError) Error() string { return string(e) }
