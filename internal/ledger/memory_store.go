package ledger

import (
	"sync"
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
	"github.com/apexnet/apexcore/internal/txn"
)

// MemoryStore is a non-durable Store: everything lives in process memory
// and is lost on restart. It is the backing for tests and for ad-hoc runs
// that pass no ledger_path.
type MemoryStore struct {
	mu              sync.RWMutex
	agents          map[ids.AgentId]AgentRecord
	bank            SystemBank
	log             []txn.Transaction
	txIndex         map[ids.TxId]bool
	lastTxTimestamp time.Time
}

// NewMemoryStore constructs an empty in-memory store seeded with the given
// initial bank balance.
func NewMemoryStore(initialBankBalance SystemBank) *MemoryStore {
	return &MemoryStore{
		agents:  make(map[ids.AgentId]AgentRecord),
		bank:    initialBankBalance,
		txIndex: make(map[ids.TxId]bool),
	}
}

func (s *MemoryStore) LoadAgent(id ids.AgentId) (AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[id]
	return rec, ok
}

func (s *MemoryStore) LoadBank() SystemBank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bank
}

func (s *MemoryStore) AllAgents() map[ids.AgentId]AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ids.AgentId]AgentRecord, len(s.agents))
	for k, v := range s.agents {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) LastTxTimestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTxTimestamp
}

func (s *MemoryStore) HasTxID(id ids.TxId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txIndex[id]
}

func (s *MemoryStore) TransactionLog() []txn.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]txn.Transaction, len(s.log))
	copy(out, s.log)
	return out
}

func (s *MemoryStore) CreateAgent(rec AgentRecord, genesisTx txn.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[rec.ID]; exists {
		return ErrAlreadyExists
	}
	s.bank.Balance = s.bank.Balance.Sub(rec.Financials.Balance)
	s.agents[rec.ID] = rec
	s.appendLocked(genesisTx)
	return nil
}

func (s *MemoryStore) Commit(tx txn.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDeltaLocked(tx)
	s.appendLocked(tx)
	return nil
}

// appendLocked appends tx to the log and index; caller holds s.mu.
func (s *MemoryStore) appendLocked(tx txn.Transaction) {
	s.log = append(s.log, tx)
	s.txIndex[tx.TxID] = true
	s.lastTxTimestamp = tx.Timestamp
}

// applyDeltaLocked moves tx.Amount from tx.From to tx.To; caller holds s.mu.
func (s *MemoryStore) applyDeltaLocked(tx txn.Transaction) {
	s.debitLocked(tx.From, tx.Amount)
	s.creditLocked(tx.To, tx.Amount)
}

func (s *MemoryStore) debitLocked(id ids.AgentId, amount money.Money) {
	if id == ids.SystemBank {
		s.bank.Balance = s.bank.Balance.Sub(amount)
		return
	}
	rec := s.agents[id]
	rec.Financials.Balance = rec.Financials.Balance.Sub(amount)
	s.agents[id] = rec
}

func (s *MemoryStore) creditLocked(id ids.AgentId, amount money.Money) {
	if id == ids.SystemBank {
		s.bank.Balance = s.bank.Balance.Add(amount)
		return
	}
	if id == ids.SystemTreasury || id == ids.BurnSink {
		// True sinks: the amount leaves circulating supply entirely and is
		// never re-credited anywhere, matching the zero-balance snapshot
		// the Verifier always sees for these ids.
		return
	}
	rec := s.agents[id]
	rec.Financials.Balance = rec.Financials.Balance.Add(amount)
	s.agents[id] = rec
}

func (s *MemoryStore) ApplyPerformanceUpdate(id ids.AgentId, delta PerformanceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	if delta.Streak != nil {
		rec.Performance.Streak = *delta.Streak
	}
	if delta.SuccessRate != nil {
		rec.Performance.SuccessRate = *delta.SuccessRate
	}
	if delta.Reputation != nil {
		rec.Performance.Reputation = *delta.Reputation
	}
	if delta.AvgEfficiency != nil {
		rec.Performance.AvgEfficiency = *delta.AvgEfficiency
	}
	s.agents[id] = rec
	return nil
}

// Snapshot is a no-op: MemoryStore has nothing durable to checkpoint.
func (s *MemoryStore) Snapshot() error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
