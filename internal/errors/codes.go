// Package errors provides structured, machine-readable error handling for the
// turn orchestration engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Budget/context errors
	CodeBudgetNonPositiveCap Code = "BUDGET_NON_POSITIVE_CAP"

	// Router errors
	CodeRouterIntentOutOfSet Code = "ROUTER_INTENT_OUT_OF_SET"
	CodeRouterOutputInvalid  Code = "ROUTER_OUTPUT_INVALID"

	// Payload errors
	CodePayloadNotStructured     Code = "PAYLOAD_NOT_STRUCTURED"
	CodePayloadMissingField      Code = "PAYLOAD_MISSING_FIELD"
	CodePayloadInvalidEnumValue  Code = "PAYLOAD_INVALID_ENUM_VALUE"
	CodePayloadUnknownHandler    Code = "PAYLOAD_UNKNOWN_HANDLER"
	CodePayloadMalformedJSON     Code = "PAYLOAD_MALFORMED_JSON"
	CodePayloadInvalidFieldValue Code = "PAYLOAD_INVALID_FIELD_VALUE"

	// Backend call errors
	CodeBackendTimeout        Code = "BACKEND_TIMEOUT"
	CodeBackendRateLimited    Code = "BACKEND_RATE_LIMITED"
	CodeBackendConnection     Code = "BACKEND_CONNECTION"
	CodeBackendBadRequest     Code = "BACKEND_BAD_REQUEST"
	CodeBackendPolicyRejected Code = "BACKEND_POLICY_REJECTED"
	CodeBackendInternal       Code = "BACKEND_INTERNAL"
	CodeBackendEmptyOutput    Code = "BACKEND_EMPTY_OUTPUT"

	// Turn errors
	CodeTurnEmptyInput     Code = "TURN_EMPTY_INPUT"
	CodeTurnCallsExhausted Code = "TURN_CALLS_EXHAUSTED"
	CodeTurnAbandoned      Code = "TURN_ABANDONED"

	// Memory errors
	CodeMemoryInvalidType Code = "MEMORY_INVALID_TYPE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodePayloadNotStructured,
		CodePayloadMissingField,
		CodePayloadInvalidEnumValue,
		CodePayloadUnknownHandler,
		CodePayloadMalformedJSON,
		CodePayloadInvalidFieldValue,
		CodeRouterIntentOutOfSet,
		CodeRouterOutputInvalid,
		CodeBackendBadRequest,
		CodeMemoryInvalidType,
		CodeTurnEmptyInput:
		return codes.InvalidArgument

	// FailedPrecondition - state or configuration disallows the operation
	case CodeBudgetNonPositiveCap,
		CodeBackendPolicyRejected:
		return codes.FailedPrecondition

	// Unavailable - transient backend failures
	case CodeBackendTimeout,
		CodeBackendConnection,
		CodeBackendInternal,
		CodeTurnCallsExhausted:
		return codes.Unavailable

	// ResourceExhausted - rate limiting
	case CodeBackendRateLimited:
		return codes.ResourceExhausted

	// Cancelled - client abandoned the turn
	case CodeTurnAbandoned:
		return codes.Canceled

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
