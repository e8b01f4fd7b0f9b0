package builtins

import (
	"context"
	"fmt"

	"github.com/apexnet/apexcore/internal/apexerr"
	"github.com/apexnet/apexcore/internal/hooks"
)

// PermissionSource resolves the set of tool names an agent is permitted to
// call, typically backed by the agent's persona record.
type PermissionSource interface {
	Permissions(agentID string) ([]string, error)
}

// PermissionCheck is a PRE_TOOL hook that rejects a tools/call whose target
// tool name is not in the calling agent's permitted set.
type PermissionCheck struct {
	source PermissionSource
}

// NewPermissionCheck builds the hook against a permission source.
func NewPermissionCheck(source PermissionSource) *PermissionCheck {
	return &PermissionCheck{source: source}
}

func (h *PermissionCheck) ID() string { return "permission_check" }

func (h *PermissionCheck) Run(ctx context.Context, payload *hooks.Payload) error {
	toolName, _ := payload.Params["name"].(string)
	if toolName == "" {
		return nil
	}
	allowed, err := h.source.Permissions(payload.AgentID)
	if err != nil {
		return fmt.Errorf("permission_check: %w", err)
	}
	for _, name := range allowed {
		if name == "*" || name == toolName {
			return nil
		}
	}
	payload.Halt = true
	payload.AddViolation(hooks.Violation{
		Kind:   "permission_denied",
		HookID: h.ID(),
		Detail: fmt.Sprintf("agent not permitted to call %q", toolName),
		Code:   apexerr.CodePermissionDenied,
	})
	return nil
}
