package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
)

// snapshotAgent is the on-disk shape of an AgentRecord.
type snapshotAgent struct {
	ID                ids.AgentId `json:"id"`
	Balance           string      `json:"balance"`
	Escrow            string      `json:"escrow"`
	LifetimeEarnings  string      `json:"lifetime_earnings"`
	DebtCeiling       string      `json:"debt_ceiling"`
	Streak            int         `json:"streak"`
	SuccessRate       float64     `json:"success_rate"`
	Reputation        float64     `json:"reputation"`
	AvgEfficiency     float64     `json:"avg_efficiency"`
	DisplayName       string      `json:"display_name"`
	Tier              Tier        `json:"tier"`
	Active            bool        `json:"active"`
	CreatedAt         time.Time   `json:"created_at"`
}

type snapshotBank struct {
	Balance           string `json:"balance"`
	TotalTaxCollected string `json:"total_tax_collected"`
	TotalBondsBurned  string `json:"total_bonds_burned"`
}

type snapshotMetadata struct {
	Version            int       `json:"version"`
	Currency           string    `json:"currency"`
	CreatedAt          time.Time `json:"created_at"`
	LastCheckpointHash string    `json:"last_checkpoint_hash"`
}

// snapshotDoc is the exact on-disk shape of ledger.snapshot.json.
type snapshotDoc struct {
	Metadata           snapshotMetadata         `json:"metadata"`
	SystemBank         snapshotBank             `json:"system_bank"`
	Agents             map[ids.AgentId]snapshotAgent `json:"agents"`
	LastTxID           string                   `json:"last_tx_id"`
	LastCheckpointHash string                   `json:"last_checkpoint_hash"`
}

func toSnapshotAgent(rec AgentRecord) snapshotAgent {
	return snapshotAgent{
		ID:               rec.ID,
		Balance:          rec.Financials.Balance.String(),
		Escrow:           rec.Financials.Escrow.String(),
		LifetimeEarnings: rec.Financials.LifetimeEarnings.String(),
		DebtCeiling:      rec.Financials.DebtCeiling.String(),
		Streak:           rec.Performance.Streak,
		SuccessRate:      rec.Performance.SuccessRate,
		Reputation:       rec.Performance.Reputation,
		AvgEfficiency:    rec.Performance.AvgEfficiency,
		DisplayName:      rec.Metadata.DisplayName,
		Tier:             rec.Metadata.Tier,
		Active:           rec.Metadata.Active,
		CreatedAt:        rec.Metadata.CreatedAt,
	}
}

func fromSnapshotAgent(s snapshotAgent) (AgentRecord, error) {
	bal, ok := money.Parse(s.Balance)
	if !ok {
		return AgentRecord{}, fmt.Errorf("snapshot: bad balance %q for agent %s", s.Balance, s.ID)
	}
	escrow, ok := money.Parse(s.Escrow)
	if !ok {
		return AgentRecord{}, fmt.Errorf("snapshot: bad escrow %q for agent %s", s.Escrow, s.ID)
	}
	earnings, ok := money.Parse(s.LifetimeEarnings)
	if !ok {
		return AgentRecord{}, fmt.Errorf("snapshot: bad lifetime_earnings %q for agent %s", s.LifetimeEarnings, s.ID)
	}
	ceiling, ok := money.Parse(s.DebtCeiling)
	if !ok {
		return AgentRecord{}, fmt.Errorf("snapshot: bad debt_ceiling %q for agent %s", s.DebtCeiling, s.ID)
	}
	return AgentRecord{
		ID: s.ID,
		Financials: Financials{
			Balance:          bal,
			Escrow:           escrow,
			LifetimeEarnings: earnings,
			DebtCeiling:      ceiling,
		},
		Performance: Performance{
			Streak:        s.Streak,
			SuccessRate:   s.SuccessRate,
			Reputation:    s.Reputation,
			AvgEfficiency: s.AvgEfficiency,
		},
		Metadata: AgentMetadata{
			DisplayName: s.DisplayName,
			Tier:        s.Tier,
			Active:      s.Active,
			CreatedAt:   s.CreatedAt,
		},
	}, nil
}

// writeSnapshot atomically writes doc to path: serialize to a temp file in
// the same directory, fsync it, then rename over the live file. The rename
// is atomic on POSIX filesystems, so a crash mid-write never leaves a
// torn snapshot.
func writeSnapshot(path string, doc snapshotDoc) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ledger.snapshot.*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// readSnapshot loads ledger.snapshot.json from path. A missing file is not
// an error: it means the ledger has never been checkpointed.
func readSnapshot(path string) (snapshotDoc, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return snapshotDoc{}, false, nil
	}
	if err != nil {
		return snapshotDoc{}, false, err
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return snapshotDoc{}, false, fmt.Errorf("snapshot: decode: %w", err)
	}
	return doc, true, nil
}

// checkpointHash digests a snapshot's bank balance and agent count; the
// agents' own fields are not part of the digest. Snapshot stores the result
// as LastCheckpointHash; recovery loads it without recomputing or comparing it.
func checkpointHash(doc snapshotDoc) string {
	ids := make([]string, 0, len(doc.Agents))
	for id := range doc.Agents {
		ids = append(ids, string(id))
	}
	h := sha256.New()
	fmt.Fprintf(h, "bank=%s|agents=%d", doc.SystemBank.Balance, len(ids))
	return hex.EncodeToString(h.Sum(nil))
}
