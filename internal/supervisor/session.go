package supervisor

import (
	"sync/atomic"

	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/pkg/types"
)

// Session is a live session. It is created and destroyed only by the
// Supervisor; callers borrow the client and must not keep it past a
// single operation.
type Session struct {
	ID          string
	Description string

	client whatsapp.Client
	gen    uint64
	state  atomic.Value
}

func newSession(id, description string, gen uint64) *Session {
	s := &Session{ID: id, Description: description, gen: gen}
	s.state.Store(types.StateUninitialized)
	return s
}

// Client returns the session's messaging client.
func (s *Session) Client() whatsapp.Client {
	return s.client
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	return s.state.Load().(types.SessionState)
}

func (s *Session) setState(st types.SessionState) {
	s.state.Store(st)
}

func (s *Session) descriptor(ready bool) types.SessionDescriptor {
	return types.SessionDescriptor{ID: s.ID, Description: s.Description, Ready: ready}
}
