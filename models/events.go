package models

import "time"

type EventKind string

const (
	EventDeltaAccepted      EventKind = "delta_accepted"
	EventDeltaStale         EventKind = "delta_stale"
	EventDeltaMalformed     EventKind = "delta_malformed"
	EventDeltaPartial       EventKind = "delta_partial"
	EventDeltaUnchanged     EventKind = "delta_unchanged"
	EventActuationCompleted EventKind = "actuation_completed"
	EventActuationFault     EventKind = "actuation_fault"
	EventShadowPublished    EventKind = "shadow_published"
	EventAckTimeout         EventKind = "ack_timeout"
)

// LockEvent is one entry of the lock-event journal, mirrored to NATS and postgres.
type LockEvent struct {
	Thing       string    `json:"thing"`
	Kind        EventKind `json:"kind"`
	Version     uint64    `json:"version,omitempty"`
	LockState   LockState `json:"lock_state"`
	ClientToken string    `json:"client_token,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

func NewLockEvent(kind EventKind) LockEvent {
	return LockEvent{Kind: kind, Timestamp: time.Now().UnixMilli()}
}
