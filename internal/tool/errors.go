package tool

import "errors"

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolDisabled is returned when a registered tool, or its group, is disabled.
	ErrToolDisabled = errors.New("tool is disabled")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrPaddedName is returned when a tool or group name has surrounding
	// whitespace.
	ErrPaddedName = errors.New("name must not have surrounding whitespace")

	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrInvalidPermission is returned for unknown policy values.
	ErrInvalidPermission = errors.New("invalid permission")

	// ErrNoApprover is returned when an approval is required but no approver is configured.
	ErrNoApprover = errors.New("no approver configured")

	// ErrApprovalTimeout is returned when an approval request times out.
	ErrApprovalTimeout = errors.New("approval request timed out")

	// ErrApprovalPending is returned when a PendingApproval is already in flight.
	ErrApprovalPending = errors.New("approval already pending")
)
