package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolgate/internal/security"
)

// ExecuteOptions lets trusted callers bypass the approval checkpoints.
// The orchestration sandbox sets both: the outer script call was approved.
type ExecuteOptions struct {
	SkipExecutionApproval bool
	SkipResultApproval    bool
}

// Execute runs a tool call end to end: lookup → argument validation →
// permission resolution → elevated adjustment → execution approval →
// execute → result approval → result pipeline. Every failure mode is
// reported as a Status on the returned Result; Execute never returns an
// error and never panics because of a tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, opts ExecuteOptions) (res Result) {
	start := time.Now()
	callID := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", callID),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("tool.status", string(res.Status)),
			attribute.Bool("tool.truncated", res.IsTruncated),
		)
		if !res.OK() {
			span.SetStatus(codes.Error, string(res.Status))
		}
		span.End()
		if r.observer != nil {
			r.observer.ObserveExecution(name, res.Status, time.Since(start))
		}
		r.logger.Debug("tool: executed",
			"tool", name, "call_id", callID, "status", res.Status, "elapsed", time.Since(start))
	}()

	r.mu.RLock()
	entry, ok := r.tools[name]
	var (
		t        Tool
		callable bool
		perm     Permission
	)
	if ok {
		t = entry.tool
		callable = r.callableLocked(entry)
		perm = r.overrides.Resolve(t)
	}
	elevated := r.elevated
	r.mu.RUnlock()

	if !ok {
		return failed(StatusNotFound, fmt.Errorf("%w: %s", ErrToolNotFound, name))
	}
	if !callable {
		return failed(StatusNotFound, fmt.Errorf("%w: %s", ErrToolDisabled, name))
	}

	if r.rateLimiter != nil {
		if err := r.rateLimiter.Allow(security.KindToolCall); err != nil {
			r.auditLog(security.AuditEvent{
				Type:     security.EventRateLimit,
				CallID:   callID,
				ToolName: name,
				Detail:   "tool_call rate limit exceeded",
			})
			return failed(StatusError, fmt.Errorf("tool %s: %w", name, err))
		}
	}

	viewArgs := compressArgs(t, args)
	r.auditLog(security.AuditEvent{
		Type:     security.EventToolCall,
		CallID:   callID,
		ToolName: name,
		Detail:   truncateForAudit(string(viewArgs)),
	})

	if r.validate {
		if err := r.validators.validate(t, args); err != nil {
			return failed(StatusError, err)
		}
	}

	perm = elevated.Apply(perm)
	span.SetAttributes(
		attribute.String("tool.execution_policy", string(perm.Execution)),
		attribute.String("tool.result_policy", string(perm.Result)),
	)

	if !opts.SkipExecutionApproval && perm.Execution != ExecAuto {
		d := r.gateExecution(ctx, callID, t, args, viewArgs, perm)
		r.recordDecision(callID, name, CheckpointExecution, d)
		if !d.Approved {
			return rejected(StatusExecutionRejected, reasonOr(d.Reason, "the user declined to run this tool"))
		}
	}

	out, err := runTool(ctx, t, args)
	detail := "ok"
	if err != nil {
		detail = "error: " + err.Error()
	}
	r.auditLog(security.AuditEvent{
		Type:     security.EventToolResult,
		CallID:   callID,
		ToolName: name,
		Detail:   truncateForAudit(detail),
		Metadata: map[string]string{"is_error": strconv.FormatBool(out.IsError || err != nil)},
	})
	if err != nil {
		r.logger.Warn("tool: execution failed", "tool", name, "call_id", callID, "error", err)
		return failed(StatusError, err)
	}

	if !opts.SkipResultApproval && needsResultReview(perm.Result, out) {
		d := r.gateResult(ctx, callID, t, viewArgs, out)
		r.recordDecision(callID, name, CheckpointResult, d)
		if !d.Approved {
			res = rejected(StatusResultRejected, reasonOr(d.Reason, "the user withheld this result"))
			res.Data = out.Data
			res.IsError = out.IsError
			return res
		}
	}

	processed, err := r.pipeline.Process(ctx, name, t, out.Data, args)
	if err != nil {
		return failed(StatusError, err)
	}
	return Result{
		Status:        StatusSuccess,
		Data:          out.Data,
		IsError:       out.IsError,
		IsTruncated:   processed.IsTruncated,
		FormattedText: processed.FormattedText,
		FinalText:     processed.FinalText,
		CacheFile:     processed.CacheFile,
	}
}

// gateExecution returns the execution decision for a gated call. Durable
// decisions win, then the ask-once memo, then the approver.
func (r *Registry) gateExecution(ctx context.Context, callID string, t Tool, args, viewArgs json.RawMessage, perm Permission) Decision {
	key := NewDecisionKey(t.Name(), args)

	if r.durable != nil {
		d, ok, err := r.durable.Lookup(ctx, key)
		if err != nil {
			r.logger.Warn("tool: decision store lookup failed", "tool", t.Name(), "error", err)
		} else if ok {
			return d
		}
	}

	askOnce := perm.Execution == ExecAskOnce
	if askOnce {
		if d, ok, _ := r.memo.Lookup(ctx, key); ok {
			return d
		}
	}

	if r.execApprover == nil {
		return Decision{Reason: ErrNoApprover.Error()}
	}

	req := ExecutionRequest{
		ID:          callID,
		ToolName:    t.Name(),
		Description: t.Description(),
		Arguments:   viewArgs,
		Permission:  perm,
	}
	d, err := r.ask(ctx, func(ctx context.Context) (Decision, error) {
		return r.execApprover.ApproveExecution(ctx, req)
	})
	if err != nil {
		r.logger.Warn("tool: execution approval failed", "tool", t.Name(), "call_id", callID, "error", err)
		return Decision{Reason: "approval failed: " + err.Error()}
	}

	if askOnce {
		_ = r.memo.Remember(ctx, key, d)
	}
	if d.Persist && r.durable != nil {
		if err := r.durable.Remember(ctx, key, d); err != nil {
			r.logger.Warn("tool: persisting decision failed", "tool", t.Name(), "error", err)
		}
	}
	return d
}

// gateResult asks the result approver. It is never memoized.
func (r *Registry) gateResult(ctx context.Context, callID string, t Tool, viewArgs json.RawMessage, out Output) Decision {
	if r.resultApprover == nil {
		return Decision{Reason: ErrNoApprover.Error()}
	}
	data := out.Data
	if c, ok := t.(ResultCompressor); ok {
		data = c.CompressResult(data)
	}
	req := ResultRequest{
		ID:        callID,
		ToolName:  t.Name(),
		Arguments: viewArgs,
		Data:      data,
		IsError:   out.IsError,
	}
	d, err := r.ask(ctx, func(ctx context.Context) (Decision, error) {
		return r.resultApprover.ApproveResult(ctx, req)
	})
	if err != nil {
		r.logger.Warn("tool: result approval failed", "tool", t.Name(), "call_id", callID, "error", err)
		return Decision{Reason: "approval failed: " + err.Error()}
	}
	return d
}

// ask runs a single approval flow, bounded by the approval timeout if set.
func (r *Registry) ask(ctx context.Context, fn AskFunc) (Decision, error) {
	return NewPendingApproval().Begin(ctx, fn, r.approvalTimeout)
}

func (r *Registry) recordDecision(callID, name string, cp Checkpoint, d Decision) {
	if r.observer != nil {
		r.observer.ObserveApproval(name, cp, d.Approved)
	}
	verdict := "approved"
	if !d.Approved {
		verdict = "rejected"
		if d.Reason != "" {
			verdict += ": " + d.Reason
		}
	}
	r.auditLog(security.AuditEvent{
		Type:     security.EventApproval,
		CallID:   callID,
		ToolName: name,
		Detail:   verdict,
		Metadata: map[string]string{"checkpoint": string(cp)},
	})
}

func (r *Registry) auditLog(ev security.AuditEvent) {
	if r.audit != nil {
		r.audit.Log(ev)
	}
}

func runTool(ctx context.Context, t Tool, args json.RawMessage) (out Output, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = Output{}
			err = fmt.Errorf("tool %s panicked: %v", t.Name(), p)
		}
	}()
	return t.Execute(ctx, args)
}

func needsResultReview(p ResultPolicy, out Output) bool {
	switch p {
	case ResultAlways:
		return true
	case ResultOnError:
		return out.IsError
	default:
		return false
	}
}

func compressArgs(t Tool, args json.RawMessage) json.RawMessage {
	if c, ok := t.(ArgsCompressor); ok {
		return c.CompressArgs(args)
	}
	return args
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}

// maxAuditDetailLen is the maximum length of audit detail strings.
const maxAuditDetailLen = 4096

// truncateForAudit truncates a string to maxAuditDetailLen, appending
// a truncation indicator if the string was shortened.
// It walks back to a valid UTF-8 rune boundary to avoid splitting multi-byte
// characters when the cut falls mid-rune.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
