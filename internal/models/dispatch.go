package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DispatchRequest asks the controller to launch an account on a worker
type DispatchRequest struct {
	AccountID      string `json:"account_id"`
	WorkerNickname string `json:"daemon_nickname"`
}

// Validate checks the dispatch payload
func (r DispatchRequest) Validate() error {
	if strings.TrimSpace(r.AccountID) == "" || strings.TrimSpace(r.WorkerNickname) == "" {
		return fmt.Errorf("%w: account_id and daemon_nickname are required", ErrValidation)
	}
	return nil
}

// DispatchResult is the worker's answer to a dispatched work item. Payload
// holds the worker's response body verbatim.
type DispatchResult struct {
	ID         string          `json:"id"`
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Message extracts the message field from a {status, message} payload
func (r *DispatchResult) Message() string {
	var body StatusResponse
	if err := json.Unmarshal(r.Payload, &body); err != nil {
		return strings.TrimSpace(string(r.Payload))
	}
	return body.Message
}

// DispatchRecord is one entry of the dispatch history
type DispatchRecord struct {
	ID         string    `json:"id" db:"id"`
	AccountID  string    `json:"account_id" db:"account_id"`
	Worker     string    `json:"worker" db:"worker"`
	Status     string    `json:"status" db:"status"`
	StatusCode int       `json:"status_code,omitempty" db:"status_code"`
	Message    string    `json:"message,omitempty" db:"message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
