package server

// ErrorResponse is the standardized error payload for every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"` // Service health status
}

// WalletResponse is the public view of a chat's wallet. The encrypted secret
// never leaves the store.
type WalletResponse struct {
	ID        string `json:"id"`
	ChatID    int64  `json:"chat_id"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

// PurchaseStartRequest opens a buy dialogue for a chat.
type PurchaseStartRequest struct {
	ChatID int64  `json:"chat_id"`
	Asset  string `json:"asset"` // symbol or 0x-prefixed asset id
}

// PurchaseAmountRequest feeds the amount into the chat's pending dialogue.
type PurchaseAmountRequest struct {
	ChatID int64  `json:"chat_id"`
	Amount string `json:"amount"` // raw user text, validated by the pipeline
}

// PurchaseCancelRequest abandons the chat's pending dialogue.
type PurchaseCancelRequest struct {
	ChatID int64 `json:"chat_id"`
}

// ToggleSetRequest creates or updates an operational toggle.
type ToggleSetRequest struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
	Note  string `json:"note"` // optional operator note
}

// ToggleUpdateRequest updates an existing toggle by key.
type ToggleUpdateRequest struct {
	Value bool   `json:"value"`
	Note  string `json:"note"`
}

// AIAskRequest represents a natural language query request
type AIAskRequest struct {
	Question string `json:"question"` // Natural language question about trade data
	Model    string `json:"model"`    // Optional AI model override
}

// AIAskResponse represents the response from an AI query
type AIAskResponse struct {
	SQL    string `json:"sql"`     // Generated SQL query
	Answer string `json:"answer"`  // Natural language answer
	TookMs int64  `json:"took_ms"` // Execution time in milliseconds
}
