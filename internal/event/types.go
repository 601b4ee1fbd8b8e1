package event

import "github.com/opencode-ai/wagate/pkg/types"

// SnapshotData is the payload of init events: the registry as it stood
// when the observer subscribed.
type SnapshotData struct {
	Sessions []types.SessionDescriptor `json:"sessions"`
}

// PairingCodeData carries the raw pairing code for a session.
// Rendering it (QR image or otherwise) is up to the observer.
type PairingCodeData struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// SessionData identifies the session an event is about.
type SessionData struct {
	ID string `json:"id"`
}

// DisconnectedData reports why a session's client dropped.
type DisconnectedData struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// AuthFailedData reports a failed pairing or login attempt.
type AuthFailedData struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// MessageData is a human-readable status line for a session.
type MessageData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
