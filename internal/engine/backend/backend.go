// Package backend defines the generation backend boundary: a black-box call
// that accepts a budgeted prompt context plus an enumerated set of permitted
// tools and returns unstructured text that may embed a structured block.
package backend

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/emberloom/emberloom/internal/engine/resilience"
	"github.com/emberloom/emberloom/internal/errors"
)

// Tool names a capability the backend may exercise during generation.
type Tool string

const (
	// ToolDiceRoller permits mechanical dice resolution.
	ToolDiceRoller Tool = "dice_roller"
	// ToolLoreSearch permits campaign lore lookups.
	ToolLoreSearch Tool = "lore_search"
	// ToolMemorySearch permits long-term memory lookups.
	ToolMemorySearch Tool = "memory_search"
)

// Request carries one invocation's budgeted context and tool grants.
type Request struct {
	// Context is the assembled, budget-bounded prompt text.
	Context string
	// Tools enumerates the handler-specific permitted tools.
	Tools []Tool
}

// Generator is the external generation backend.
type Generator interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// ErrorCode is the structured failure code reported by a backend call.
type ErrorCode string

const (
	CodeTimeout        ErrorCode = "timeout"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeConnection     ErrorCode = "connection"
	CodeBadRequest     ErrorCode = "bad_request"
	CodePolicyRejected ErrorCode = "policy_rejected"
	CodeInternal       ErrorCode = "internal"
)

// CallError is a backend failure carrying a structured code. Retry decisions
// key on the code, never on the message text.
type CallError struct {
	Code    ErrorCode
	Message string
	cause   error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("backend %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CallError) Unwrap() error {
	return e.cause
}

// NewCallError creates a backend failure with the given structured code.
func NewCallError(code ErrorCode, message string) *CallError {
	return &CallError{Code: code, Message: message}
}

// Classify partitions backend failures for the resilience executor. Errors
// without a structured code are treated as transient so an unclassified
// outage still gets its retry budget.
func Classify(err error) resilience.ErrorClass {
	var callErr *CallError
	if stderrors.As(err, &callErr) {
		switch callErr.Code {
		case CodeBadRequest, CodePolicyRejected:
			return resilience.ClassPermanent
		}
		return resilience.ClassTransient
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return resilience.ClassPermanent
	}
	return resilience.ClassTransient
}

// DomainCode maps a backend failure to the engine's error code space.
func DomainCode(err error) errors.Code {
	var callErr *CallError
	if !stderrors.As(err, &callErr) {
		return errors.CodeBackendInternal
	}
	switch callErr.Code {
	case CodeTimeout:
		return errors.CodeBackendTimeout
	case CodeRateLimited:
		return errors.CodeBackendRateLimited
	case CodeConnection:
		return errors.CodeBackendConnection
	case CodeBadRequest:
		return errors.CodeBackendBadRequest
	case CodePolicyRejected:
		return errors.CodeBackendPolicyRejected
	}
	return errors.CodeBackendInternal
}
