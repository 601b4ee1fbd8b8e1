// Package event provides the lifecycle event bus of the gateway.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/pkg/types"
)

// EventType represents the type of event.
type EventType string

const (
	Init              EventType = "init"
	PairingCodeIssued EventType = "qr"
	Ready             EventType = "ready"
	Authenticated     EventType = "authenticated"
	AuthFailed        EventType = "auth_failure"
	Disconnected      EventType = "disconnected"
	SessionRemoved    EventType = "remove-session"
	StatusMessage     EventType = "message"
)

// Topic is the watermill topic every published event is mirrored to.
const Topic = "wagate.lifecycle"

// DefaultQueueSize is the per-observer buffer used when none is configured.
const DefaultQueueSize = 64

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Event represents an event to be published.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Data      any       `json:"data"`
}

// SnapshotFunc returns the current registry contents.
type SnapshotFunc func(ctx context.Context) ([]types.SessionDescriptor, error)

// Bus fans events out to observers.
//
// Every observer owns a bounded queue; Publish never blocks on a slow
// observer and drops that observer's oldest queued event instead. Publish
// and Subscribe are serialized, so an observer sees its snapshot strictly
// before any event published after it joined, and sees events in
// publication order.
type Bus struct {
	mu        sync.Mutex
	observers map[uint64]*Observer
	nextID    uint64
	queueSize int
	snapshot  SnapshotFunc
	closed    bool

	// Mirror of every event for out-of-band consumers (audit log).
	pubsub *gochannel.GoChannel
}

// NewBus creates a bus whose observers receive snapshot() on join.
func NewBus(snapshot SnapshotFunc, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if snapshot == nil {
		snapshot = func(context.Context) ([]types.SessionDescriptor, error) {
			return []types.SessionDescriptor{}, nil
		}
	}
	return &Bus{
		observers: make(map[uint64]*Observer),
		queueSize: queueSize,
		snapshot:  snapshot,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: int64(queueSize),
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers a new observer. Its first event is an Init event
// carrying the registry snapshot.
func (b *Bus) Subscribe(ctx context.Context) (*Observer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sessions, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []types.SessionDescriptor{}
	}

	b.nextID++
	o := &Observer{
		id:  b.nextID,
		bus: b,
		ch:  make(chan Event, b.queueSize),
	}
	o.deliver(Event{Type: Init, Data: SnapshotData{Sessions: sessions}})
	b.observers[o.id] = o

	return o, nil
}

// Publish delivers e to every current observer without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for _, o := range b.observers {
		o.deliver(e)
	}
	b.mu.Unlock()

	b.mirror(e)
}

// ObserverCount returns the number of subscribed observers.
func (b *Bus) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

func (b *Bus) mirror(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logging.Warn().Err(err).Str("eventType", string(e.Type)).Msg("event not mirrored")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	msg.Metadata.Set("sessionID", e.SessionID)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		logging.Debug().Err(err).Msg("event mirror publish failed")
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, id)
}

// PubSub returns the watermill GoChannel that mirrors every event.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Close closes every observer and the mirror.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	observers := b.observers
	b.observers = make(map[uint64]*Observer)
	b.mu.Unlock()

	for _, o := range observers {
		o.close()
	}
	return b.pubsub.Close()
}

// Observer is one subscriber's view of the bus.
type Observer struct {
	id      uint64
	bus     *Bus
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

// C returns the observer's event stream. It is closed by Close.
func (o *Observer) C() <-chan Event {
	return o.ch
}

// Dropped returns how many events were discarded because the observer lagged.
func (o *Observer) Dropped() uint64 {
	return o.dropped.Load()
}

// Close unsubscribes the observer.
func (o *Observer) Close() {
	o.bus.remove(o.id)
	o.close()
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// deliver enqueues e, evicting the oldest queued event if the queue is full.
// Only deliver sends on ch, under o.mu, so the final send cannot block.
func (o *Observer) deliver(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	select {
	case o.ch <- e:
		return
	default:
	}

	select {
	case old := <-o.ch:
		o.dropped.Add(1)
		logging.Warn().
			Uint64("observer", o.id).
			Str("eventType", string(old.Type)).
			Msg("observer lagging, oldest event dropped")
	default:
	}
	o.ch <- e
}
