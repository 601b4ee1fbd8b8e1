// Package router forwards outbound operations to the live session that
// should perform them.
//
// Every send endpoint shares one contract: an unknown sender yields a
// NotFoundError, and anything the client rejects comes back as a
// DeliveryError carrying the cause. Failures are never retried here.
package router

import (
	"context"
	"time"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/whatsapp"
)

// Lookup resolves a session id to its client.
type Lookup interface {
	Client(id string) (whatsapp.Client, bool)
}

// Router dispatches operations. It holds no session state.
type Router struct {
	lookup  Lookup
	timeout time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout bounds every operation. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		r.timeout = d
	}
}

// New creates a router over lookup.
func New(lookup Lookup, opts ...Option) *Router {
	r := &Router{lookup: lookup}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a NotFoundError if sessionID has no live session.
// Handlers call it before doing work on behalf of a sender.
func (r *Router) Resolve(sessionID string) error {
	if _, ok := r.lookup.Client(sessionID); !ok {
		return &NotFoundError{SessionID: sessionID}
	}
	return nil
}

// Dispatch runs op with the client of sessionID.
func (r *Router) Dispatch(ctx context.Context, sessionID string, op Operation) (any, error) {
	client, ok := r.lookup.Client(sessionID)
	if !ok {
		return nil, &NotFoundError{SessionID: sessionID}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := op.Apply(ctx, client)
	if err != nil {
		logging.Warn().
			Str("sessionID", sessionID).
			Str("op", op.Name()).
			Err(err).
			Msg("Delivery failed")
		return nil, &DeliveryError{SessionID: sessionID, Op: op.Name(), Err: err}
	}

	logging.Debug().
		Str("sessionID", sessionID).
		Str("op", op.Name()).
		Dur("took", time.Since(start)).
		Msg("Operation delivered")
	return result, nil
}
