package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/pkg/types"
)

// Status lines broadcast alongside typed events.
const (
	MsgPairingCode   = "QR Code received, scan please!"
	MsgReady         = "Whatsapp is ready!"
	MsgAuthenticated = "Whatsapp is authenticated!"
	MsgAuthFailure   = "Auth failure, restarting..."
	MsgDisconnected  = "Whatsapp is disconnected!"
)

// signalBuffer bounds the callback queue.
const signalBuffer = 256

// initFailureFloor is the minimum delay before restarting a session whose
// client failed to initialize.
var initFailureFloor = time.Second

// RestartConfig controls how disconnected sessions are recreated.
// The zero value restarts immediately and indefinitely.
type RestartConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed gives up restarting after this long without a ready
	// session. Zero never gives up.
	MaxElapsed time.Duration
}

func (c RestartConfig) newBackOff() backoff.BackOff {
	if c.InitialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	b.MaxElapsedTime = c.MaxElapsed
	b.Reset()
	return b
}

// Config holds the supervisor's collaborators.
type Config struct {
	Store       registry.Store
	Bus         *event.Bus
	Factory     whatsapp.Factory
	Credentials whatsapp.CredentialStore
	Restart     RestartConfig
}

type pendingRestart struct {
	desc types.SessionDescriptor
	// timer is nil until the previous client has been torn down.
	timer *time.Timer
}

func (p *pendingRestart) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Supervisor owns the live session set.
type Supervisor struct {
	store   registry.Store
	bus     *event.Bus
	factory whatsapp.Factory
	creds   whatsapp.CredentialStore
	restart RestartConfig

	// mu guards the live set, the registry mutations that must agree
	// with it, and the restart bookkeeping.
	mu       sync.RWMutex
	sessions map[string]*Session
	pending  map[string]*pendingRestart
	backoffs map[string]backoff.BackOff
	// tearing holds ids whose client is being destroyed outside mu. The
	// channel closes once teardown is done; creates for the id wait on it.
	tearing map[string]chan struct{}
	gen     uint64
	closed  bool

	// inits counts Initialize calls in flight. Close waits for them so no
	// client is destroyed before it started.
	inits sync.WaitGroup

	signals chan signal
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a supervisor and starts its signal loop.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Store == nil {
		return nil, errors.New("supervisor: registry store required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("supervisor: event bus required")
	}
	if cfg.Factory == nil {
		return nil, errors.New("supervisor: client factory required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		store:    cfg.Store,
		bus:      cfg.Bus,
		factory:  cfg.Factory,
		creds:    cfg.Credentials,
		restart:  cfg.Restart,
		sessions: make(map[string]*Session),
		pending:  make(map[string]*pendingRestart),
		backoffs: make(map[string]backoff.BackOff),
		tearing:  make(map[string]chan struct{}),
		signals:  make(chan signal, signalBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// CreateSession starts a session for id. It is a no-op if a live session
// with id already exists.
func (s *Supervisor) CreateSession(ctx context.Context, id, description string) error {
	return s.create(ctx, id, description, createOpts{})
}

type createOpts struct {
	// restart is set when the call comes from a restart timer. The create
	// is abandoned if that restart was cancelled meanwhile.
	restart *pendingRestart
	// fromRegistry skips ids that are restarting or no longer registered.
	fromRegistry bool
}

func (s *Supervisor) create(ctx context.Context, id, description string, opts createOpts) error {
	if id == "" {
		return ErrInvalidID
	}
	log := logging.Session(id)

	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		done, ok := s.tearing[id]
		if !ok {
			break
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return ErrClosed
		}
		s.mu.Lock()
	}

	if opts.restart != nil && s.pending[id] != opts.restart {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		log.Info().Msg("Session already exists")
		return nil
	}
	if opts.fromRegistry {
		if _, ok := s.pending[id]; ok {
			s.mu.Unlock()
			return nil
		}
		registered, err := s.registered(ctx, id)
		if err != nil || !registered {
			s.mu.Unlock()
			return err
		}
	}

	s.gen++
	sess := newSession(id, description, s.gen)
	client, err := s.factory(whatsapp.Options{
		ID:          id,
		Credentials: s.creds,
		Handlers:    s.handlersFor(id, sess.gen),
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create client for %s: %w", id, err)
	}
	sess.client = client

	if _, err := s.store.Insert(ctx, sess.descriptor(false)); err != nil {
		s.mu.Unlock()
		_ = client.Destroy(ctx)
		return fmt.Errorf("register session %s: %w", id, err)
	}

	// Any scheduled restart is satisfied by this session.
	if p, ok := s.pending[id]; ok {
		p.stop()
		delete(s.pending, id)
	}
	sess.setState(types.StateInitializing)
	s.sessions[id] = sess
	s.inits.Add(1)
	s.mu.Unlock()
	defer s.inits.Done()

	log.Info().Str("description", description).Msg("Creating session")

	if err := client.Initialize(s.ctx); err != nil {
		log.Error().Err(err).Msg("Client failed to initialize")
		s.enqueue(signal{
			kind:       sigDisconnected,
			id:         id,
			gen:        sess.gen,
			reason:     err.Error(),
			initFailed: true,
		})
	}
	return nil
}

// registered reports whether id is in the registry. Callers hold s.mu.
func (s *Supervisor) registered(ctx context.Context, id string) (bool, error) {
	descriptors, err := s.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(descriptors, func(d types.SessionDescriptor) bool {
		return d.ID == id
	}), nil
}

// GetSession returns the live session for id.
func (s *Supervisor) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Client returns the client of the live session for id.
func (s *Supervisor) Client(id string) (whatsapp.Client, bool) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, false
	}
	return sess.Client(), true
}

// Status joins the registry with the live set. Descriptors come first in
// persisted order, followed by live sessions that have none.
func (s *Supervisor) Status(ctx context.Context) ([]types.SessionStatus, error) {
	descriptors, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SessionStatus, 0, len(descriptors))
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		st := types.SessionStatus{SessionDescriptor: d, State: types.StateUninitialized}
		if sess, ok := s.sessions[d.ID]; ok {
			st.Live = true
			st.State = sess.State()
		} else if _, ok := s.pending[d.ID]; ok {
			st.State = types.StateDisconnected
		}
		out = append(out, st)
		seen[d.ID] = true
	}
	for id, sess := range s.sessions {
		if seen[id] {
			continue
		}
		out = append(out, types.SessionStatus{
			SessionDescriptor: sess.descriptor(false),
			Live:              true,
			State:             sess.State(),
		})
	}
	return out, nil
}

// RemoveSession stops a session for good: the client is logged out and
// destroyed, the descriptor and stored credentials are deleted, and no
// restart follows.
func (s *Supervisor) RemoveSession(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sess, live := s.sessions[id]
	p, restarting := s.pending[id]
	if !live && !restarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	delete(s.backoffs, id)
	if restarting {
		p.stop()
		delete(s.pending, id)
	}
	var done chan struct{}
	if live {
		done = make(chan struct{})
		s.tearing[id] = done
	}
	removeErr := s.store.Remove(ctx, id)
	s.mu.Unlock()

	log := logging.Session(id)
	if live {
		if err := sess.client.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to log out client")
		}
		if err := sess.client.Destroy(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to destroy client")
		}
		s.tornDown(id, done)
	}
	if removeErr != nil {
		return fmt.Errorf("remove session %s: %w", id, removeErr)
	}
	if s.creds != nil {
		if err := s.creds.Delete(ctx, whatsapp.CredentialPath(id)); err != nil {
			log.Warn().Err(err).Msg("Failed to delete credentials")
		}
	}

	log.Info().Msg("Session removed")
	s.enqueue(signal{kind: sigRemoved, id: id})
	return nil
}

// tornDown ends the teardown of id started with done.
func (s *Supervisor) tornDown(id string, done chan struct{}) {
	s.mu.Lock()
	if s.tearing[id] == done {
		delete(s.tearing, id)
	}
	s.mu.Unlock()
	close(done)
}

// Reconcile creates sessions for descriptors that have no live session,
// such as entries added to the registry by hand. Entries removed by hand
// are only reported. Each id is checked against the registry again before
// it is created, so a concurrent removal is not undone.
func (s *Supervisor) Reconcile(ctx context.Context, descriptors []types.SessionDescriptor) {
	want := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		want[d.ID] = true
		if err := s.create(ctx, d.ID, d.Description, createOpts{fromRegistry: true}); err != nil {
			log := logging.Session(d.ID)
			log.Error().Err(err).Msg("Failed to create session from registry")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.sessions {
		if !want[id] {
			log := logging.Session(id)
			log.Warn().Msg("Live session has no registry entry")
		}
	}
}

// Close destroys every live client and stops the supervisor. The registry
// is left untouched so the next start restores the same sessions.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	for id, p := range s.pending {
		p.stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.inits.Wait()
	s.wg.Wait()

	var errs []error
	for id, sess := range sessions {
		if err := sess.client.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig := <-s.signals:
			s.handle(sig)
		}
	}
}

// current returns the live session sig belongs to, or nil if sig came
// from a client that is no longer live. Callers hold s.mu.
func (s *Supervisor) current(sig signal) *Session {
	sess, ok := s.sessions[sig.id]
	if !ok || sess.gen != sig.gen {
		return nil
	}
	return sess
}

func (s *Supervisor) handle(sig signal) {
	switch sig.kind {
	case sigPairingCode:
		s.onPairingCode(sig)
	case sigAuthenticated:
		s.onAuthenticated(sig)
	case sigAuthFailure:
		s.onAuthFailure(sig)
	case sigReady:
		s.onReady(sig)
	case sigDisconnected:
		s.onDisconnected(sig)
	case sigRemoved:
		s.bus.Publish(event.Event{Type: event.SessionRemoved, SessionID: sig.id, Data: event.SessionData{ID: sig.id}})
	}
}

func (s *Supervisor) stale(sig signal) {
	log := logging.Session(sig.id)
	log.Debug().
		Str("signal", sig.kind.String()).
		Uint64("generation", sig.gen).
		Msg("Dropping signal from replaced client")
}

func (s *Supervisor) publish(t event.EventType, id string, data any, text string) {
	s.bus.Publish(event.Event{Type: t, SessionID: id, Data: data})
	if text != "" {
		s.bus.Publish(event.Event{
			Type:      event.StatusMessage,
			SessionID: id,
			Data:      event.MessageData{ID: id, Text: text},
		})
	}
}

func (s *Supervisor) onPairingCode(sig signal) {
	s.mu.RLock()
	sess := s.current(sig)
	s.mu.RUnlock()
	if sess == nil {
		s.stale(sig)
		return
	}
	sess.setState(types.StatePairingRequired)
	log := logging.Session(sig.id)
	log.Info().Msg("Pairing code received")
	s.publish(event.PairingCodeIssued, sig.id, event.PairingCodeData{ID: sig.id, Code: sig.code}, MsgPairingCode)
}

func (s *Supervisor) onAuthenticated(sig signal) {
	s.mu.RLock()
	sess := s.current(sig)
	s.mu.RUnlock()
	if sess == nil {
		s.stale(sig)
		return
	}
	sess.setState(types.StateAuthenticated)
	log := logging.Session(sig.id)
	log.Info().Msg("Session authenticated")
	s.publish(event.Authenticated, sig.id, event.SessionData{ID: sig.id}, MsgAuthenticated)
}

func (s *Supervisor) onAuthFailure(sig signal) {
	s.mu.RLock()
	sess := s.current(sig)
	s.mu.RUnlock()
	if sess == nil {
		s.stale(sig)
		return
	}
	sess.setState(types.StateInitializing)

	var msg string
	if sig.err != nil {
		msg = sig.err.Error()
	}
	log := logging.Session(sig.id)
	log.Warn().Str("error", msg).Msg("Authentication failed")
	s.publish(event.AuthFailed, sig.id, event.AuthFailedData{ID: sig.id, Error: msg}, MsgAuthFailure)
}

func (s *Supervisor) onReady(sig signal) {
	log := logging.Session(sig.id)

	s.mu.Lock()
	sess := s.current(sig)
	if sess == nil {
		s.mu.Unlock()
		s.stale(sig)
		return
	}
	err := s.store.SetReady(s.ctx, sig.id)
	if errors.Is(err, registry.ErrNotFound) {
		log.Error().
			Err(fmt.Errorf("%w: ready for %s without descriptor", ErrConsistency, sig.id)).
			Msg("Recreating missing descriptor")
		_, err = s.store.Insert(s.ctx, sess.descriptor(true))
	}
	delete(s.backoffs, sig.id)
	sess.setState(types.StateReady)
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to mark session ready")
	}
	log.Info().Msg("Session ready")
	s.publish(event.Ready, sig.id, event.SessionData{ID: sig.id}, MsgReady)
}

// onDisconnected tears the old client down before any restart is armed,
// and creates for the same id wait until it is gone.
func (s *Supervisor) onDisconnected(sig signal) {
	log := logging.Session(sig.id)

	s.mu.Lock()
	sess := s.current(sig)
	if sess == nil {
		s.mu.Unlock()
		s.stale(sig)
		return
	}
	sess.setState(types.StateDisconnected)
	delete(s.sessions, sig.id)
	removeErr := s.store.Remove(s.ctx, sig.id)
	done := make(chan struct{})
	s.tearing[sig.id] = done

	b, ok := s.backoffs[sig.id]
	if !ok {
		b = s.restart.newBackOff()
		s.backoffs[sig.id] = b
	}
	delay := b.NextBackOff()
	if delay != backoff.Stop && sig.initFailed && delay < initFailureFloor {
		delay = initFailureFloor
	}
	var p *pendingRestart
	if delay == backoff.Stop {
		delete(s.backoffs, sig.id)
	} else if !s.closed {
		p = &pendingRestart{desc: sess.descriptor(false)}
		s.pending[sig.id] = p
	}
	s.mu.Unlock()

	if err := sess.client.Destroy(s.ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to destroy client")
	}

	s.mu.Lock()
	if s.tearing[sig.id] == done {
		delete(s.tearing, sig.id)
	}
	if p != nil && s.pending[sig.id] == p {
		p.timer = time.AfterFunc(delay, func() { s.fireRestart(sig.id, p) })
	}
	s.mu.Unlock()
	close(done)

	if removeErr != nil {
		log.Error().Err(removeErr).Msg("Failed to remove descriptor")
	}

	if delay == backoff.Stop {
		log.Error().Str("reason", sig.reason).Msg("Session disconnected, giving up restarts")
	} else {
		log.Warn().Str("reason", sig.reason).Dur("restartIn", delay).Msg("Session disconnected")
	}

	s.publish(event.Disconnected, sig.id, event.DisconnectedData{ID: sig.id, Reason: sig.reason}, MsgDisconnected)
	s.bus.Publish(event.Event{Type: event.SessionRemoved, SessionID: sig.id, Data: event.SessionData{ID: sig.id}})
}

func (s *Supervisor) fireRestart(id string, p *pendingRestart) {
	log := logging.Session(id)
	log.Info().Msg("Restarting session")
	if err := s.create(s.ctx, id, p.desc.Description, createOpts{restart: p}); err != nil && !errors.Is(err, ErrClosed) {
		log.Error().Err(err).Msg("Failed to restart session")
	}
}
