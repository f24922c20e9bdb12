package calculator

import "go-chi-calculator/internal/history"

// EvaluateRequest is the JSON body for POST /calculator/evaluate.
type EvaluateRequest struct {
	Expression string `json:"expression"`
}

// EvaluateResponse is the JSON response for a successful evaluation.
type EvaluateResponse struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
	Display    string  `json:"display"` // result as the calculator shows it
}

// EvaluateError is the JSON response for a rejected expression.
type EvaluateError struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"` // "invalid_characters", "unsafe_expression", ...
	Expression string `json:"expression"`
}

// KeyRequest is the JSON body for POST /calculator/sessions/{id}/keys.
type KeyRequest struct {
	Key string `json:"key"` // keyboard key name, e.g. "7", "Enter", "Escape"
}

// SessionResponse is returned by every endpoint that changes or reads a
// session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	View
}

// HistoryResponse is the JSON response for GET /calculator/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	History   []history.Entry `json:"history"`
}

// BatchStep is one input in a batch: either an action or a keyboard key.
type BatchStep struct {
	Action
	Key string `json:"key,omitempty"`
}

// BatchRequest is the JSON body for POST /calculator/sessions/{id}/batch.
type BatchRequest struct {
	Steps []BatchStep `json:"steps"`
}

// BatchResult is the display after one batch step.
type BatchResult struct {
	Index      int        `json:"index"`
	Kind       ActionKind `json:"kind,omitempty"`
	Key        string     `json:"key,omitempty"`
	Ignored    bool       `json:"ignored,omitempty"` // key without a binding
	Expression string     `json:"expression"`
	Result     string     `json:"result"`
	Status     Status     `json:"status"`
	ErrorKind  string     `json:"error_kind,omitempty"`
}

// BatchResponse is the final session view plus the display after each step.
type BatchResponse struct {
	SessionResponse
	Steps []BatchResult `json:"steps"`
}
