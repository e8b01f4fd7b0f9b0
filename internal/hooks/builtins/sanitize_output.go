package builtins

import (
	"context"
	"regexp"

	"github.com/apexnet/apexcore/internal/hooks"
)

// secretPatterns redact common credential shapes from tool output before
// it is returned to a caller or written to the audit log.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*\S+`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
}

// SanitizeOutput is a POST_TOOL hook that redacts likely secrets from the
// tool result before it reaches downstream hooks or the caller.
type SanitizeOutput struct{}

// NewSanitizeOutput builds the hook.
func NewSanitizeOutput() *SanitizeOutput { return &SanitizeOutput{} }

func (h *SanitizeOutput) ID() string { return "sanitize_output" }

func (h *SanitizeOutput) Run(ctx context.Context, payload *hooks.Payload) error {
	result, ok := payload.Params["result"].(string)
	if !ok {
		return nil
	}
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, "[redacted]")
	}
	payload.Params["result"] = result
	return nil
}
