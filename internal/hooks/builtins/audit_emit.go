package builtins

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/apexnet/apexcore/internal/hooks"
)

// auditRecord matches the on-disk shape described for audit.log: an
// append-only NDJSON stream of POST_TOOL audit entries.
type auditRecord struct {
	Timestamp    time.Time         `json:"timestamp"`
	RequestID    string            `json:"request_id"`
	Method       string            `json:"method"`
	AgentID      string            `json:"agent_id,omitempty"`
	Violations   []hooks.Violation `json:"violations"`
	ResultDigest string            `json:"result_digest,omitempty"`
}

// AuditEmit is a POST_TOOL hook that appends one NDJSON record per request
// that reaches the POST_TOOL phase to the audit log; a request halted in
// PRE_TOOL is not recorded. Writes are serialized; a single *os.File append is
// already atomic for writes under PIPE_BUF on POSIX, but the mutex also
// guards the log rotation boundary should one ever be added.
type AuditEmit struct {
	mu sync.Mutex
	f  *os.File
}

// NewAuditEmit opens (or creates) the audit log at path in append mode.
func NewAuditEmit(path string) (*AuditEmit, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit_emit: open %s: %w", path, err)
	}
	return &AuditEmit{f: f}, nil
}

func (h *AuditEmit) ID() string { return "audit_emit" }

func (h *AuditEmit) Run(ctx context.Context, payload *hooks.Payload) error {
	requestID, _ := payload.Context["request_id"].(string)

	digest := ""
	if result, ok := payload.Params["result"]; ok {
		if b, err := json.Marshal(result); err == nil {
			sum := sha256.Sum256(b)
			digest = hex.EncodeToString(sum[:])
		}
	}

	rec := auditRecord{
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
		Method:       payload.Method,
		AgentID:      payload.AgentID,
		Violations:   payload.Violations,
		ResultDigest: digest,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit_emit: marshal record: %w", err)
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.f.Write(line)
	return err
}

// Close releases the underlying file handle.
func (h *AuditEmit) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}
