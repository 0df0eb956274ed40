package ws

import (
	"encoding/json"
	"time"
)

// Frame types exchanged over the gateway. Client→server types carry the C2S
// prefix, server→client the S2C prefix.
const (
	TypeAddReminder   = "C2S_ADD_REMINDER"
	TypeReminderAdded = "S2C_REMINDER_ADDED"
	TypeReminderFired = "S2C_REMINDER_FIRED"
	TypeError         = "ERROR"
)

// Error codes carried in ErrorPayload.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeBadPayload  = "BAD_PAYLOAD"
	CodeUnknownType = "UNKNOWN_TYPE"
	CodeServer      = "SERVER_ERROR"
)

// Frame is the envelope for every message on the wire.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AddReminderPayload is the client request to create a reminder.
// At is an RFC 3339 timestamp strictly in the future.
type AddReminderPayload struct {
	Name string `json:"name"`
	At   string `json:"at"`
}

// ReminderAddedPayload acknowledges a creation request. Created is false when
// an existing PENDING reminder with the same name was returned instead.
type ReminderAddedPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	At      string `json:"at"`
	Created bool   `json:"created"`
}

// ReminderFiredPayload is broadcast to every connected subscriber when a
// reminder transitions to FIRED.
type ReminderFiredPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	At      string `json:"at"`
	FiredAt string `json:"fired_at"`
}

// ErrorPayload reports a failed request to the client that sent it.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mustFrame builds a Frame with a marshalled payload. Payload types in this
// package contain only strings and bools, so marshalling cannot fail.
func mustFrame(typ string, payload any) Frame {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("ws: marshal frame payload: " + err.Error())
	}
	return Frame{Type: typ, Payload: raw}
}

// isoMs renders a UTC-millisecond timestamp as RFC 3339.
func isoMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
