package router

import "fmt"

// NotFoundError is returned when the sender has no live session.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("The sender: %s is not found!", e.SessionID)
}

// DeliveryError wraps a failure reported by a session's client.
type DeliveryError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s via %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// GroupNotFoundError is returned when no group chat of the session matches
// the requested name.
type GroupNotFoundError struct {
	Name string
}

func (e *GroupNotFoundError) Error() string {
	return "No group found with name: " + e.Name
}
