package models

// Wire types of the batch endpoint. Both the server handlers and the bulk
// client encode exactly these shapes.

// NonceHeader carries the per-session token on every endpoint request
const NonceHeader = "X-W3A11Y-Nonce"

// Error codes returned in ErrorResponse.Code
const (
	CodeInvalidNonce = "invalid_nonce"
	CodeValidation   = "validation_error"
	CodeBatchFailed  = "batch_failed"
	CodeConflict     = "conflict"
	CodeNotFound     = "not_found"
	CodeInternal     = "internal_error"
)

// StartRunRequest opens a bulk run
type StartRunRequest struct {
	Options   ProcessingOptions `json:"options"`
	BatchSize int               `json:"batch_size"`
}

// StartRunResponse returns the run id and the number of eligible images
type StartRunResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	Total   int64  `json:"total"`
}

// BatchRequest asks the endpoint to process one batch of a run
type BatchRequest struct {
	RunID     string            `json:"run_id"`
	BatchSize int               `json:"batch_size"`
	Options   ProcessingOptions `json:"options"`
}

// BatchResult describes one image handled in a batch
type BatchResult struct {
	ImageID int64  `json:"image_id"`
	AltText string `json:"alt_text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResponse reports the outcome of one batch
type BatchResponse struct {
	Success        bool          `json:"success"`
	Processed      int64         `json:"processed"`
	Failed         int64         `json:"failed"`
	TotalProcessed int64         `json:"total_processed"`
	Remaining      int64         `json:"remaining"`
	HasMore        bool          `json:"has_more"`
	Results        []BatchResult `json:"results,omitempty"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
