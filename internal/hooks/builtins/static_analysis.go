package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/apexnet/apexcore/internal/apexerr"
	"github.com/apexnet/apexcore/internal/hooks"
)

// deniedImports are Python (or shell) constructs that a static analysis
// pass must reject outright, regardless of the caller's tier.
var deniedImports = []string{"os.system", "subprocess", "eval(", "exec(", "__import__"}

// deniedCommands are shell command names a command argument must not invoke.
var deniedCommands = []string{"rm -rf", "curl ", "wget ", "nc ", "ssh "}

// StaticAnalysis is a PRE_TOOL hook that scans the `code` and `command`
// arguments of a tool call for denylisted constructs. It is registered as
// critical in the default manifest: any match halts the pipeline.
type StaticAnalysis struct{}

// NewStaticAnalysis builds the hook. It carries no configuration today;
// the config map is accepted for manifest-builder symmetry.
func NewStaticAnalysis(cfg map[string]any) (*StaticAnalysis, error) {
	return &StaticAnalysis{}, nil
}

func (h *StaticAnalysis) ID() string { return "static_analysis" }

func (h *StaticAnalysis) Run(ctx context.Context, payload *hooks.Payload) error {
	args, _ := payload.Params["arguments"].(map[string]any)
	if args == nil {
		return nil
	}

	if code, ok := args["code"].(string); ok {
		for _, denied := range deniedImports {
			if strings.Contains(code, denied) {
				payload.Halt = true
				payload.AddViolation(hooks.Violation{
					Kind:   "static_analysis_code",
					HookID: h.ID(),
					Detail: fmt.Sprintf("blocked construct %q", denied),
					Code:   apexerr.CodeStaticAnalysisCode,
				})
				return nil
			}
		}
	}

	if command, ok := args["command"].(string); ok {
		for _, denied := range deniedCommands {
			if strings.Contains(command, denied) {
				payload.Halt = true
				payload.AddViolation(hooks.Violation{
					Kind:   "static_analysis_command",
					HookID: h.ID(),
					Detail: fmt.Sprintf("blocked command %q", denied),
					Code:   apexerr.CodeStaticAnalysisCommand,
				})
				return nil
			}
		}
	}

	return nil
}
