package engine

import (
	"errors"
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("FLOW")

var (
	// Flow errors
	CodeFlowNotFound = ErrRegistry.Register("FLOW_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Flow not found")
	CodeEmptyFlow    = ErrRegistry.Register("EMPTY_FLOW", errx.TypeValidation, http.StatusBadRequest, "No flow data provided")
	CodeInvalidFlow  = ErrRegistry.Register("INVALID_FLOW", errx.TypeValidation, http.StatusBadRequest, "Invalid flow document")

	// Node errors
	CodeMalformedPayload   = ErrRegistry.Register("MALFORMED_PAYLOAD", errx.TypeValidation, http.StatusBadRequest, "Malformed node payload")
	CodeMissingEntityID    = ErrRegistry.Register("MISSING_ENTITY_ID", errx.TypeValidation, http.StatusBadRequest, "CRM entity id is required")
	CodeMissingField       = ErrRegistry.Register("MISSING_FIELD", errx.TypeValidation, http.StatusBadRequest, "Required node field is missing")
	CodeMissingCredentials = ErrRegistry.Register("MISSING_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Missing credentials")
	CodeProviderError      = ErrRegistry.Register("PROVIDER_ERROR", errx.TypeExternal, http.StatusBadGateway, "External provider call failed")
	CodeGatewayError       = ErrRegistry.Register("GATEWAY_ERROR", errx.TypeExternal, http.StatusBadGateway, "Messaging gateway call failed")
	CodeUnknownNodeType    = ErrRegistry.Register("UNKNOWN_NODE_TYPE", errx.TypeValidation, http.StatusBadRequest, "Unknown node type")

	// Run errors
	CodeCycleDetected    = ErrRegistry.Register("CYCLE_DETECTED", errx.TypeValidation, http.StatusBadRequest, "Flow revisited a node")
	CodeRunCancelled     = ErrRegistry.Register("RUN_CANCELLED", errx.TypeInternal, http.StatusRequestTimeout, "Run cancelled")
	CodeSchedulingFailed = ErrRegistry.Register("SCHEDULING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Could not schedule run continuation")
	CodeNodePanicked     = ErrRegistry.Register("NODE_PANICKED", errx.TypeInternal, http.StatusInternalServerError, "Node executor panicked")
)

// Error constructor functions
func ErrFlowNotFound() *errx.Error {
	return ErrRegistry.New(CodeFlowNotFound)
}

func ErrEmptyFlow() *errx.Error {
	return ErrRegistry.New(CodeEmptyFlow)
}

func ErrInvalidFlow() *errx.Error {
	return ErrRegistry.New(CodeInvalidFlow)
}

// ============================================================================
// Node failures
// ============================================================================

// ErrorKind classifies why a node (and therefore its run) failed.
type ErrorKind string

const (
	KindMalformedPayload   ErrorKind = "MalformedPayload"
	KindMissingEntityID    ErrorKind = "MissingEntityId"
	KindMissingField       ErrorKind = "MissingField"
	KindMissingCredentials ErrorKind = "MissingCredentials"
	KindProviderError      ErrorKind = "ProviderError"
	KindGatewayError       ErrorKind = "GatewayError"
	KindCycleDetected      ErrorKind = "CycleDetected"
	KindUnknownNodeType    ErrorKind = "UnknownNodeType"
	KindInvalidGraph       ErrorKind = "InvalidGraph"
	KindCancelled          ErrorKind = "Cancelled"
	KindSchedulingFailed   ErrorKind = "SchedulingFailed"
	KindInternal           ErrorKind = "Internal"
)

// NodeError carries the failure kind alongside the underlying errx error.
type NodeError struct {
	Kind ErrorKind
	Err  error
}

func (e *NodeError) Error() string { return e.Err.Error() }
func (e *NodeError) Unwrap() error { return e.Err }

func NewNodeError(kind ErrorKind, err error) *NodeError {
	return &NodeError{Kind: kind, Err: err}
}

// KindOf extracts the failure kind of err, KindInternal when it carries none.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Kind
	}
	return KindInternal
}

func ErrMalformedPayload(field string, cause error) *NodeError {
	e := ErrRegistry.New(CodeMalformedPayload).WithDetail("field", field)
	if cause != nil {
		e = e.WithDetail("cause", cause.Error())
	}
	return NewNodeError(KindMalformedPayload, e)
}

func ErrMissingEntityID(entity string) *NodeError {
	return NewNodeError(KindMissingEntityID, ErrRegistry.New(CodeMissingEntityID).WithDetail("entity", entity))
}

func ErrMissingField(field string) *NodeError {
	return NewNodeError(KindMissingField, ErrRegistry.New(CodeMissingField).WithDetail("field", field))
}

func ErrMissingCredentials(what string) *NodeError {
	return NewNodeError(KindMissingCredentials, ErrRegistry.New(CodeMissingCredentials).WithDetail("missing", what))
}

func ErrProvider(provider string, cause error) *NodeError {
	e := ErrRegistry.New(CodeProviderError).WithDetail("provider", provider)
	if cause != nil {
		e = e.WithDetail("cause", cause.Error())
	}
	return NewNodeError(KindProviderError, e)
}

func ErrGateway(cause error) *NodeError {
	e := ErrRegistry.New(CodeGatewayError)
	if cause != nil {
		e = e.WithDetail("cause", cause.Error())
	}
	return NewNodeError(KindGatewayError, e)
}

func ErrUnknownNodeType(nodeType NodeType) *NodeError {
	return NewNodeError(KindUnknownNodeType, ErrRegistry.New(CodeUnknownNodeType).WithDetail("node_type", string(nodeType)))
}

func ErrCycleDetected(nodeID string) *NodeError {
	return NewNodeError(KindCycleDetected, ErrRegistry.New(CodeCycleDetected).WithDetail("node_id", nodeID))
}

func ErrRunCancelled(cause error) *NodeError {
	return NewNodeError(KindCancelled, errx.Wrap(cause, "run cancelled", errx.TypeInternal))
}

func ErrSchedulingFailed(cause error) *NodeError {
	return NewNodeError(KindSchedulingFailed, errx.Wrap(cause, "failed to schedule continuation", errx.TypeInternal))
}

func ErrNodePanicked(recovered any) *NodeError {
	return NewNodeError(KindInternal, ErrRegistry.New(CodeNodePanicked).WithDetail("panic", stringify(recovered)))
}
