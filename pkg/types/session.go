// Package types provides the core data types for the gateway.
package types

// SessionDescriptor is the persisted record of a messaging session.
// It survives restarts and is independent of any live connection.
type SessionDescriptor struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Ready       bool   `json:"ready" yaml:"ready"`
}

// SessionState is the lifecycle state of a live session.
type SessionState string

const (
	StateUninitialized   SessionState = "uninitialized"
	StateInitializing    SessionState = "initializing"
	StatePairingRequired SessionState = "pairing_required"
	StateAuthenticated   SessionState = "authenticated"
	StateReady           SessionState = "ready"
	StateDisconnected    SessionState = "disconnected"
)

// SessionStatus joins a descriptor with the state of its live session, if any.
type SessionStatus struct {
	SessionDescriptor
	Live  bool         `json:"live"`
	State SessionState `json:"state"`
}
