package builtins

import (
	"context"
	"errors"
	"time"

	"github.com/apexnet/apexcore/internal/hooks"
	"github.com/apexnet/apexcore/internal/retry"
)

// TransientExecutor re-invokes the named tool, used only to retry a
// result that came back marked transient (e.g. an upstream 503).
type TransientExecutor interface {
	Execute(ctx context.Context, name string, arguments map[string]any) (any, error)
}

// RetryTransient is a POST_TOOL hook that re-runs the tool call through
// retry.Do when the result is annotated transient=true, up to a small
// attempt budget, before handing control to later hooks.
type RetryTransient struct {
	exec        TransientExecutor
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryTransient builds the hook against an executor.
func NewRetryTransient(exec TransientExecutor, maxAttempts int, baseDelay time.Duration) *RetryTransient {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &RetryTransient{exec: exec, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

func (h *RetryTransient) ID() string { return "retry_transient" }

func (h *RetryTransient) Run(ctx context.Context, payload *hooks.Payload) error {
	transient, _ := payload.Annotations["transient"].(bool)
	if !transient {
		return nil
	}
	name, _ := payload.Params["name"].(string)
	arguments, _ := payload.Params["arguments"].(map[string]any)

	var result any
	err := retry.Do(ctx, h.maxAttempts, h.baseDelay, func() error {
		r, err := h.exec.Execute(ctx, name, arguments)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return errors.New("retry_transient: exhausted retries: " + err.Error())
	}
	payload.Params["result"] = result
	payload.Annotations["transient"] = false
	return nil
}
