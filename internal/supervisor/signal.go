package supervisor

import "github.com/opencode-ai/wagate/internal/whatsapp"

type signalKind int

const (
	sigPairingCode signalKind = iota
	sigAuthenticated
	sigAuthFailure
	sigReady
	sigDisconnected
	sigRemoved
)

func (k signalKind) String() string {
	switch k {
	case sigPairingCode:
		return "pairing_code"
	case sigAuthenticated:
		return "authenticated"
	case sigAuthFailure:
		return "auth_failure"
	case sigReady:
		return "ready"
	case sigDisconnected:
		return "disconnected"
	case sigRemoved:
		return "removed"
	}
	return "unknown"
}

// signal is one client callback, queued for the supervisor loop.
type signal struct {
	kind   signalKind
	id     string
	gen    uint64
	code   string
	reason string
	err    error

	// initFailed marks a disconnect synthesized from a failed Initialize.
	initFailed bool
}

// handlersFor returns the callbacks for generation gen of session id.
func (s *Supervisor) handlersFor(id string, gen uint64) whatsapp.Handlers {
	return whatsapp.Handlers{
		OnPairingCode: func(code string) {
			s.enqueue(signal{kind: sigPairingCode, id: id, gen: gen, code: code})
		},
		OnAuthenticated: func() {
			s.enqueue(signal{kind: sigAuthenticated, id: id, gen: gen})
		},
		OnAuthFailure: func(err error) {
			s.enqueue(signal{kind: sigAuthFailure, id: id, gen: gen, err: err})
		},
		OnReady: func() {
			s.enqueue(signal{kind: sigReady, id: id, gen: gen})
		},
		OnDisconnected: func(reason string) {
			s.enqueue(signal{kind: sigDisconnected, id: id, gen: gen, reason: reason})
		},
	}
}

func (s *Supervisor) enqueue(sig signal) {
	select {
	case s.signals <- sig:
	case <-s.ctx.Done():
	}
}
