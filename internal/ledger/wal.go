package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/apexnet/apexcore/internal/txn"
)

// walRecord is the JSON payload a WAL entry wraps. It mirrors txn.Transaction
// field-for-field so recovery never depends on unexported state.
type walRecord struct {
	TxID      string `json:"tx_id"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Kind      string `json:"kind"`
	TaskRef   string `json:"task_ref"`
	Checksum  string `json:"checksum"`
}

func toWALRecord(tx txn.Transaction) walRecord {
	return walRecord{
		TxID:      string(tx.TxID),
		Timestamp: tx.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		From:      string(tx.From),
		To:        string(tx.To),
		Amount:    tx.Amount.String(),
		Kind:      string(tx.Kind),
		TaskRef:   tx.TaskRef,
		Checksum:  tx.Checksum,
	}
}

func (r walRecord) toTransaction() (txn.Transaction, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return txn.Transaction{}, fmt.Errorf("wal: bad timestamp %q: %w", r.Timestamp, err)
	}
	amount, ok := moneyParse(r.Amount)
	if !ok {
		return txn.Transaction{}, fmt.Errorf("wal: bad amount %q", r.Amount)
	}
	return txn.Transaction{
		TxID:      txID(r.TxID),
		Timestamp: ts,
		From:      agentID(r.From),
		To:        agentID(r.To),
		Amount:    amount,
		Kind:      txn.Kind(r.Kind),
		TaskRef:   r.TaskRef,
		Checksum:  r.Checksum,
	}, nil
}

// walWriter appends length-prefixed, checksummed records to an open WAL
// file and fsyncs after every append, per the durability protocol: the WAL
// append must hit the medium before the in-memory mutation is applied.
type walWriter struct {
	f *os.File
}

func openWALWriter(path string) (*walWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &walWriter{f: f}, nil
}

// Append serializes tx, writes `length | payload | sha256(payload)`, and
// forces the write to the medium before returning.
func (w *walWriter) Append(tx txn.Transaction) error {
	payload, err := json.Marshal(toWALRecord(tx))
	if err != nil {
		return fmt.Errorf("wal: encode: %w", err)
	}
	sum := sha256.Sum256(payload)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(payload))); err != nil {
		return fmt.Errorf("wal: write length: %w", err)
	}
	buf.Write(payload)
	buf.Write(sum[:])

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// Truncate empties the WAL file after a successful snapshot.
func (w *walWriter) Truncate() error {
	if err := w.f.Truncate(0); err != nil {
		return err
	}
	_, err := w.f.Seek(0, io.SeekStart)
	return err
}

func (w *walWriter) Close() error { return w.f.Close() }

// ReadWAL replays every record in the WAL file at path in order, verifying
// each record's embedded checksum. A truncated final record (a partial
// write from a crash mid-append) is treated as the natural end of the log,
// not a corruption: only complete but checksum-mismatched records abort
// recovery.
func ReadWAL(path string) ([]txn.Transaction, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []txn.Transaction
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				break
			}
			return nil, err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])

		payload := make([]byte, n)
		if _, err := io.ReadFull(f, payload); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				break // partial final record from an interrupted append
			}
			return nil, err
		}

		var sum [sha256.Size]byte
		if _, err := io.ReadFull(f, sum[:]); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				break
			}
			return nil, err
		}

		want := sha256.Sum256(payload)
		if !bytes.Equal(sum[:], want[:]) {
			return nil, fmt.Errorf("wal: record checksum mismatch at offset, log is corrupt")
		}

		var rec walRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("wal: decode record: %w", err)
		}
		tx, err := rec.toTransaction()
		if err != nil {
			return nil, err
		}
		if !txn.VerifyChecksum(tx) {
			return nil, fmt.Errorf("wal: transaction %s fails its own checksum", tx.TxID)
		}
		out = append(out, tx)
	}
	return out, nil
}
