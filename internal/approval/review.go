package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/tool"
)

const reviewSystemPrompt = `You are a security reviewer for tool calls made by an AI assistant.
Decide whether the call below is safe to run without asking the user.
A call is unsafe if it could delete or overwrite data, leak secrets, spend money,
contact third parties or run arbitrary code.
Answer with exactly one word on the first line: SAFE or UNSAFE.
On the second line give a one-sentence reason.`

// maxReviewArgs caps the argument text sent to the reviewer.
const maxReviewArgs = 8000

// ModelReview asks a model whether an execution is safe. A SAFE verdict
// approves the call; anything else, including a provider failure, abstains
// so that a following approver (usually a human) decides. Results are
// never reviewed by the model.
type ModelReview struct {
	completer provider.Completer
	logger    *slog.Logger
}

// NewModelReview creates a ModelReview.
func NewModelReview(c provider.Completer, logger *slog.Logger) *ModelReview {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelReview{completer: c, logger: logger}
}

// ApproveExecution implements tool.ExecutionApprover.
func (m *ModelReview) ApproveExecution(ctx context.Context, req tool.ExecutionRequest) (tool.Decision, error) {
	args := string(req.Arguments)
	if len(args) > maxReviewArgs {
		args = args[:maxReviewArgs] + "...(truncated)"
	}
	user := fmt.Sprintf("Tool: %s\nDescription: %s\nArguments: %s", req.ToolName, req.Description, args)

	reply, err := provider.CompleteText(ctx, m.completer, reviewSystemPrompt, user)
	if err != nil {
		m.logger.Warn("approval: model review failed", "tool", req.ToolName, "error", err)
		return tool.Decision{}, ErrAbstain
	}

	verdict, reason := parseVerdict(reply)
	m.logger.Info("approval: model review", "tool", req.ToolName, "verdict", verdict, "reason", reason)
	if verdict != "SAFE" {
		return tool.Decision{}, ErrAbstain
	}
	return tool.Decision{Approved: true, Reason: "model review: " + reason}, nil
}

// ApproveResult implements tool.ResultApprover.
func (m *ModelReview) ApproveResult(context.Context, tool.ResultRequest) (tool.Decision, error) {
	return tool.Decision{}, ErrAbstain
}

// parseVerdict splits a reply into its upper-cased first word and the
// rest of the text.
func parseVerdict(reply string) (verdict, reason string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(reply), "\n")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "", ""
	}
	verdict = strings.ToUpper(strings.Trim(fields[0], ".:*`"))
	reason = strings.TrimSpace(strings.Join(fields[1:], " ") + " " + rest)
	return verdict, reason
}

var _ Approver = (*ModelReview)(nil)
