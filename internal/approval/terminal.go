package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"

	"github.com/flemzord/toolgate/internal/tool"
)

// Choices offered by the terminal prompt.
const (
	choiceOnce    = "once"
	choiceAlways  = "always"
	choiceReject  = "reject"
	choiceRelease = "release"
	choiceWithhold = "withhold"
)

// maxPromptArgs caps the arguments shown in a prompt.
const maxPromptArgs = 2000

// prompt shows a select and returns the chosen value.
type prompt func(ctx context.Context, title, body string, options []huh.Option[string]) (string, error)

// Terminal asks the user on an interactive terminal. Prompts are
// serialized: a second request waits for the first to be answered.
type Terminal struct {
	mu  sync.Mutex
	ask prompt
}

// TerminalConfig configures a Terminal. Nil In and Out use the process
// stdin and stderr; stdout is left alone so it can carry MCP traffic.
type TerminalConfig struct {
	In         io.Reader
	Out        io.Writer
	Accessible bool
}

// NewTerminal creates a Terminal prompting with huh forms.
func NewTerminal(cfg TerminalConfig) *Terminal {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	return &Terminal{ask: huhPrompt(cfg)}
}

func huhPrompt(cfg TerminalConfig) prompt {
	return func(ctx context.Context, title, body string, options []huh.Option[string]) (string, error) {
		var choice string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewNote().Title(title).Description(body),
				huh.NewSelect[string]().
					Title("Decision").
					Options(options...).
					Value(&choice),
			),
		).
			WithInput(cfg.In).
			WithOutput(cfg.Out).
			WithAccessible(cfg.Accessible)
		if err := form.RunWithContext(ctx); err != nil {
			return "", err
		}
		return choice, nil
	}
}

// ApproveExecution implements tool.ExecutionApprover.
func (t *Terminal) ApproveExecution(ctx context.Context, req tool.ExecutionRequest) (tool.Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	title := fmt.Sprintf("Run tool %s?", req.ToolName)
	body := executionBody(req)
	choice, err := t.ask(ctx, title, body, []huh.Option[string]{
		huh.NewOption("Approve once", choiceOnce),
		huh.NewOption("Approve and remember", choiceAlways),
		huh.NewOption("Reject", choiceReject),
	})
	if err != nil {
		return tool.Decision{}, promptError(err)
	}
	return executionDecision(choice), nil
}

// ApproveResult implements tool.ResultApprover.
func (t *Terminal) ApproveResult(ctx context.Context, req tool.ResultRequest) (tool.Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	title := fmt.Sprintf("Send the result of %s to the model?", req.ToolName)
	choice, err := t.ask(ctx, title, resultBody(req), []huh.Option[string]{
		huh.NewOption("Release", choiceRelease),
		huh.NewOption("Withhold", choiceWithhold),
	})
	if err != nil {
		return tool.Decision{}, promptError(err)
	}
	if choice == choiceRelease {
		return tool.Decision{Approved: true}, nil
	}
	return tool.Decision{Reason: "the user withheld this result"}, nil
}

func executionDecision(choice string) tool.Decision {
	switch choice {
	case choiceOnce:
		return tool.Decision{Approved: true}
	case choiceAlways:
		return tool.Decision{Approved: true, Persist: true}
	default:
		return tool.Decision{Reason: "the user declined to run this tool"}
	}
}

// promptError turns an aborted prompt into a rejection error the registry
// reports with a reason.
func promptError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New("prompt aborted by the user")
	}
	return fmt.Errorf("terminal prompt: %w", err)
}

func executionBody(req tool.ExecutionRequest) string {
	var b strings.Builder
	if req.Description != "" {
		b.WriteString(firstLine(req.Description))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Policy: %s\n", req.Permission.Execution)
	b.WriteString("Arguments:\n")
	b.WriteString(clip(prettyJSON(req.Arguments), maxPromptArgs))
	return b.String()
}

func resultBody(req tool.ResultRequest) string {
	var b strings.Builder
	if req.IsError {
		b.WriteString("The tool reported an error.\n\n")
	}
	b.WriteString("Arguments:\n")
	b.WriteString(clip(prettyJSON(req.Arguments), maxPromptArgs))
	b.WriteString("\n\nResult:\n")
	data, err := json.MarshalIndent(req.Data, "", "  ")
	if err != nil {
		b.WriteString(fmt.Sprint(req.Data))
	} else {
		b.WriteString(clip(string(data), maxPromptArgs))
	}
	return b.String()
}

func prettyJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n...(truncated)"
}

var _ Approver = (*Terminal)(nil)
