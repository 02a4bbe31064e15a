package engine

// ============================================================================
// HTTP DTOs
// ============================================================================

type SaveFlowResponse struct {
	Message string `json:"message"`
	FlowID  string `json:"flow_id"`
}

type ExecuteFlowRequest struct {
	DialogID  string         `json:"dialog_id"`
	Variables map[string]any `json:"variables,omitempty"`
}

type ExecuteFlowResponse struct {
	Status string           `json:"status"`
	Result *ExecutionResult `json:"result,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type WebhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
