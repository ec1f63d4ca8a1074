package models

import (
	"encoding/json"
	"fmt"
)

// LockState is both the actuator position and the value reported to the shadow.
type LockState uint8

const (
	LockClosed LockState = 0
	LockOpen   LockState = 1
)

func (s LockState) String() string {
	switch s {
	case LockClosed:
		return "closed"
	case LockOpen:
		return "open"
	default:
		return fmt.Sprintf("LockState(%d)", uint8(s))
	}
}

// ParseLockState maps the wire value of lockState. Only 0 and 1 are valid.
func ParseLockState(v uint64) (LockState, bool) {
	switch v {
	case 0:
		return LockClosed, true
	case 1:
		return LockOpen, true
	}
	return LockClosed, false
}

type LockProperty struct {
	LockState LockState `json:"lockState"`
}

// State contains desired and reported states
type State struct {
	Desired  *LockProperty `json:"desired,omitempty"`
	Reported *LockProperty `json:"reported,omitempty"`
}

// Shadow is an outbound update document for the thing's shadow.
type Shadow struct {
	State       State  `json:"state"`
	ClientToken string `json:"clientToken"`
}

// ReportedDocument reports the lock state only.
func ReportedDocument(state LockState, token string) Shadow {
	return Shadow{
		State:       State{Reported: &LockProperty{LockState: state}},
		ClientToken: token,
	}
}

// ClearDesiredDocument sets desired and reported to the same state, so a
// stale desired value cannot produce another delta on reconnect.
func ClearDesiredDocument(state LockState, token string) Shadow {
	return Shadow{
		State: State{
			Desired:  &LockProperty{LockState: state},
			Reported: &LockProperty{LockState: state},
		},
		ClientToken: token,
	}
}

func (s Shadow) Marshal() ([]byte, error) {
	return json.Marshal(s)
}
