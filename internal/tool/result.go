package tool

import "fmt"

// Status is the typed outcome of a registry execution.
type Status string

// Status values. Every failure mode of Execute maps to one of these.
const (
	StatusSuccess           Status = "SUCCESS"
	StatusError             Status = "ERROR"
	StatusExecutionRejected Status = "EXECUTION_REJECTED"
	StatusResultRejected    Status = "RESULT_REJECTED"
	StatusNotFound          Status = "NOT_FOUND"
)

// Result is what the registry hands back to the model layer.
type Result struct {
	Status Status `json:"status"`

	// Data is the tool's raw output. It is only meaningful when Status is
	// SUCCESS, and is preserved on RESULT_REJECTED for orchestration callers.
	Data any `json:"data,omitempty"`

	// IsError mirrors Output.IsError.
	IsError bool `json:"is_error,omitempty"`

	// Error is set for ERROR and NOT_FOUND.
	Error string `json:"error,omitempty"`

	// RejectReason is set for the two *_REJECTED statuses.
	RejectReason string `json:"reject_reason,omitempty"`

	// Fields below are populated by the result pipeline.
	IsTruncated   bool   `json:"is_truncated,omitempty"`
	FormattedText string `json:"-"`
	FinalText     string `json:"final_text"`
	CacheFile     string `json:"cache_file,omitempty"`
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err converts a non-success result into an error, or returns nil.
func (r Result) Err() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusExecutionRejected, StatusResultRejected:
		return fmt.Errorf("%s: %s", r.Status, r.RejectReason)
	default:
		return fmt.Errorf("%s: %s", r.Status, r.Error)
	}
}

// statusText is the text the model reads for non-success results.
func statusText(r Result) string {
	switch r.Status {
	case StatusExecutionRejected:
		return "Tool execution was rejected: " + r.RejectReason
	case StatusResultRejected:
		return "Tool result was rejected: " + r.RejectReason
	case StatusNotFound:
		return "Tool unavailable: " + r.Error
	default:
		return "Tool execution failed: " + r.Error
	}
}

func failed(status Status, err error) Result {
	r := Result{Status: status, Error: err.Error()}
	r.FinalText = statusText(r)
	return r
}

func rejected(status Status, reason string) Result {
	r := Result{Status: status, RejectReason: reason}
	r.FinalText = statusText(r)
	return r
}
