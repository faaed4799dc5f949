package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeSyncRequest      MessageType = "sync_request"
	TypeSyncResult       MessageType = "sync_result"
	TypePressRunUpdate   MessageType = "press_run_update"
	TypePressRunSynced   MessageType = "press_run_synced"
	TypeConflictDetected MessageType = "conflict_detected"
	TypeAck              MessageType = "ack"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SyncRequestPayload asks the server to run one sync attempt for a press run.
type SyncRequestPayload struct {
	PressRunID string `json:"press_run_id"`
	Strategy   string `json:"strategy"`
	DeviceID   string `json:"device_id"`
}

// SyncResultPayload reports the outcome of a requested sync attempt.
type SyncResultPayload struct {
	PressRunID    string          `json:"press_run_id"`
	Status        string          `json:"status"`
	ConflictCount int             `json:"conflict_count"`
	Error         string          `json:"error,omitempty"`
	Outcome       json.RawMessage `json:"outcome,omitempty"`
}

// PressRunUpdatePayload notifies other devices that a draft changed locally.
type PressRunUpdatePayload struct {
	PressRunID    string    `json:"press_run_id"`
	Status        string    `json:"status"`
	TotalWeightKg float64   `json:"total_weight_kg"`
	LoadCount     int       `json:"load_count"`
	LastModified  time.Time `json:"last_modified"`
	DeviceID      string    `json:"device_id"`
}

// PressRunSyncedPayload notifies other devices that a press run finished a
// sync attempt successfully (or was deleted server-side and dropped).
type PressRunSyncedPayload struct {
	PressRunID    string    `json:"press_run_id"`
	Deleted       bool      `json:"deleted"`
	TotalWeightKg float64   `json:"total_weight_kg,omitempty"`
	LoadCount     int       `json:"load_count,omitempty"`
	SyncedAt      time.Time `json:"synced_at"`
	DeviceID      string    `json:"device_id"`
}

// ConflictPayload surfaces a conflict that needs manual review.
type ConflictPayload struct {
	ConflictID        string   `json:"conflict_id"`
	PressRunID        string   `json:"press_run_id"`
	Kind              string   `json:"kind"`
	EntityKind        string   `json:"entity_kind"`
	EntityID          string   `json:"entity_id"`
	ConflictingFields []string `json:"conflicting_fields"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
