// Package errors provides centralized error definitions and error handling utilities
// for workchain. It defines the sentinel errors of the scheduling core, typed errors
// that carry chain and task context, and classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - ChainError: errors raised while building, submitting or cancelling a chain
//   - TaskExecutionError: a task body failed; captured by the scheduler and turned
//     into a FAILED TaskRun, never returned to callers of SubmitChain
//
// Semantic errors:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewChainError("submit rejected", errors.ErrInvalidChain).WithName("img")
//
//	if errors.Is(err, errors.ErrInvalidChain) { ... }
//
//	var execErr *errors.TaskExecutionError
//	if errors.As(err, &execErr) && execErr.IsRetryable() { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Chain-related sentinel errors
var (
	// ErrInvalidChain indicates a chain that cannot be submitted (nil or without nodes).
	ErrInvalidChain = New("invalid chain")
	// ErrEmptyChain indicates that a chain was built from zero descriptors.
	// It matches ErrInvalidChain under errors.Is.
	ErrEmptyChain = fmt.Errorf("empty chain: %w", ErrInvalidChain)
	// ErrInvalidPolicy indicates an unrecognised existing-work policy.
	ErrInvalidPolicy = New("invalid policy")
	// ErrUnknownName indicates that no run exists for a unique name.
	ErrUnknownName = New("unknown unique name")
)

// Task-related sentinel errors
var (
	// ErrTaskExecution indicates that a task body reported failure or panicked.
	ErrTaskExecution = New("task execution failed")
	// ErrUnknownWorker indicates that no worker is registered for a descriptor type.
	ErrUnknownWorker = New("no worker registered for type")
	// ErrDataTooLarge indicates that task data exceeds the allowed encoded size.
	ErrDataTooLarge = New("data exceeds size limit")
	// ErrInvalidData indicates a data value that is not a supported primitive.
	ErrInvalidData = New("unsupported data value")
)

// General sentinel errors
var (
	// ErrSchedulerClosed indicates an operation on a scheduler that has been closed.
	ErrSchedulerClosed = New("scheduler closed")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// WorkchainError is implemented by every typed error in this package.
type WorkchainError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity

	// IsRetryable returns true if the operation may succeed when attempted again.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to print on the CLI.
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ChainError represents errors related to chain submission and control.
//
// Example:
//
//	err := errors.NewChainError("submit rejected", errors.ErrEmptyChain).WithName("img")
//	fmt.Println(err) // "chain error [name=img]: submit rejected: empty chain: invalid chain"
type ChainError struct {
	baseError
	Name  string
	RunID string
}

// NewChainError creates a new ChainError.
func NewChainError(message string, cause error) *ChainError {
	return &ChainError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithName adds the unique chain name to the error context.
func (e *ChainError) WithName(name string) *ChainError {
	e.Name = name
	return e
}

// WithRunID adds the chain run ID to the error context.
func (e *ChainError) WithRunID(id string) *ChainError {
	e.RunID = id
	return e
}

// WithSeverity sets the error severity.
func (e *ChainError) WithSeverity(s Severity) *ChainError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *ChainError) Error() string {
	var parts []string
	if e.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%s", e.Name))
	}
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	return formatWithContext("chain error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ChainError) Is(target error) bool {
	if _, ok := target.(*ChainError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TaskExecutionError wraps the failure of a single task body attempt.
// Failures are retryable by default; the scheduler decides whether attempts remain.
type TaskExecutionError struct {
	baseError
	TypeID    string
	TaskRunID string
	Attempt   int
}

// NewTaskExecutionError creates a new TaskExecutionError.
func NewTaskExecutionError(typeID string, cause error) *TaskExecutionError {
	return &TaskExecutionError{
		baseError: baseError{
			message:   "task body failed",
			cause:     cause,
			severity:  SeverityWarning,
			retryable: true,
		},
		TypeID: typeID,
	}
}

// WithTaskRunID adds the TaskRun ID to the error context.
func (e *TaskExecutionError) WithTaskRunID(id string) *TaskExecutionError {
	e.TaskRunID = id
	return e
}

// WithAttempt records which attempt failed (1-based).
func (e *TaskExecutionError) WithAttempt(n int) *TaskExecutionError {
	e.Attempt = n
	return e
}

// WithRetryable sets whether the failure may be retried.
func (e *TaskExecutionError) WithRetryable(r bool) *TaskExecutionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TaskExecutionError) Error() string {
	var parts []string
	if e.TypeID != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.TypeID))
	}
	if e.TaskRunID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskRunID))
	}
	if e.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	return formatWithContext("task error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *TaskExecutionError) Is(target error) bool {
	if _, ok := target.(*TaskExecutionError); ok {
		return true
	}
	if target == ErrTaskExecution {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a missing resource.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found", resourceType),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s %q not found", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s not found", e.ResourceType)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("name cannot be empty").WithField("name")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err represents a transient condition.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrCanceled) {
		return false
	}
	var wcErr WorkchainError
	if As(err, &wcErr) {
		return wcErr.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var wcErr WorkchainError
	if As(err, &wcErr) {
		return wcErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement WorkchainError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var wcErr WorkchainError
	if As(err, &wcErr) {
		return wcErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
