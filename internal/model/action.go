package model

import (
	"encoding/json"
	"time"
)

const DefaultPriority = 5

// PendingAction is a durable unit of work awaiting delivery to the server.
// Synced actions are never delivered again; failed ones wait for an operator.
type PendingAction struct {
	ID          int64           `json:"id,omitempty"`
	ClientID    string          `json:"client_id"`
	ActionType  string          `json:"actionType"`
	Data        json.RawMessage `json:"data"`
	Priority    int             `json:"priority"`
	Timestamp   time.Time       `json:"timestamp"`
	Synced      bool            `json:"synced"`
	SyncedAt    *time.Time      `json:"syncedAt,omitempty"`
	RetryCount  int             `json:"retryCount"`
	LastError   string          `json:"lastError,omitempty"`
	LastAttempt *time.Time      `json:"lastAttempt,omitempty"`
	Failed      bool            `json:"failed"`
}

// MarshalJSON also emits the action type under "type", which some sync
// endpoints read instead of "actionType".
func (a PendingAction) MarshalJSON() ([]byte, error) {
	type alias PendingAction
	return json.Marshal(struct {
		alias
		Type string `json:"type"`
	}{alias: alias(a), Type: a.ActionType})
}

// SyncMetadata is a keyed bookkeeping record such as the last full sync time.
type SyncMetadata struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
