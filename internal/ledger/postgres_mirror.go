package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/txn"
)

// PostgresMirror writes every committed transaction to a secondary
// Postgres table for analytics and reconciliation. It is never consulted
// to decide whether a transaction may commit; the file-backed Store
// remains the sole source of truth, per the durability protocol.
type PostgresMirror struct {
	db *sql.DB
}

// PoolConfig tunes the mirror's connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewPostgresMirror opens a connection pool against dsn. Callers should
// run `cmd/apexmigrate` against the same database before first use.
func NewPostgresMirror(dsn string, pool PoolConfig) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open postgres mirror: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping postgres mirror: %w", err)
	}
	return &PostgresMirror{db: db}, nil
}

// MirrorTransaction upserts tx into tx_mirror. It is idempotent on tx_id
// so a retried mirror write after a transient failure never double-counts.
func (m *PostgresMirror) MirrorTransaction(ctx context.Context, tx txn.Transaction) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO tx_mirror (tx_id, committed_at, from_agent, to_agent, amount, kind, task_ref, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_id) DO NOTHING
	`, string(tx.TxID), tx.Timestamp, string(tx.From), string(tx.To), tx.Amount, string(tx.Kind), tx.TaskRef, tx.Checksum)
	return err
}

// Close releases the underlying connection pool.
func (m *PostgresMirror) Close() error {
	return m.db.Close()
}

// DB exposes the underlying connection pool for metrics sampling
// (metrics.StartDBStatsCollector) and connection-pool tuning.
func (m *PostgresMirror) DB() *sql.DB {
	return m.db
}

// Reconcile reports the tx_ids of authoritative log entries that have no
// row in the mirror. Mirror rows absent from the log are not reported. It
// never writes to either side; divergence is an operator alert, not an
// auto-heal trigger.
func (m *PostgresMirror) Reconcile(ctx context.Context, authoritative []txn.Transaction) (missing []ids.TxId, err error) {
	rows, err := m.db.QueryContext(ctx, `SELECT tx_id FROM tx_mirror`)
	if err != nil {
		return nil, fmt.Errorf("ledger: reconcile query: %w", err)
	}
	defer rows.Close()

	mirrored := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		mirrored[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tx := range authoritative {
		if !mirrored[string(tx.TxID)] {
			missing = append(missing, tx.TxID)
		}
	}
	return missing, nil
}
