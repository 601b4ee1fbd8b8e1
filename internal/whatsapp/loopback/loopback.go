// Package loopback is a development driver for the messaging boundary.
//
// A loopback client pairs itself: on first start it issues a pairing code,
// waits PairDelay, stores a credential and reports authenticated and ready.
// Later starts find the credential and skip pairing. Sent messages are kept
// in memory and logged. It lets the gateway run end to end without a real
// protocol driver.
package loopback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/whatsapp"
)

// Credential is what a loopback client persists after pairing.
type Credential struct {
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId"`
	PairedAt  int64  `json:"pairedAt"`
}

// Driver builds loopback clients.
type Driver struct {
	// PairDelay is how long a new session waits before it pairs itself.
	PairDelay time.Duration
	// Groups are visible to every client as group chats.
	Groups []whatsapp.Chat
}

// Factory satisfies whatsapp.Factory.
func (d *Driver) Factory(opts whatsapp.Options) (whatsapp.Client, error) {
	if opts.Credentials == nil {
		return nil, errors.New("loopback: credential store required")
	}
	c := &Client{
		id:        opts.ID,
		creds:     opts.Credentials,
		handlers:  opts.Handlers,
		pairDelay: d.PairDelay,
		chats:     make(map[string]whatsapp.Chat),
	}
	for _, g := range d.Groups {
		c.chats[g.ID] = g
	}
	return c, nil
}

// Client is a self-pairing in-memory client.
type Client struct {
	id        string
	creds     whatsapp.CredentialStore
	handlers  whatsapp.Handlers
	pairDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	ready  bool
	chats  map[string]whatsapp.Chat
	outbox []whatsapp.MessageResult
}

// Initialize starts the pairing sequence in the background.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("loopback: already initialized")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

func (c *Client) run(ctx context.Context) {
	log := logging.Session(c.id)

	var cred Credential
	err := c.creds.Get(ctx, whatsapp.CredentialPath(c.id), &cred)
	switch {
	case err == nil:
		log.Debug().Str("device", cred.DeviceID).Msg("loopback: restoring credential")
	case errors.Is(err, storage.ErrNotFound):
		code := ulid.Make().String()
		c.emit(func(h whatsapp.Handlers) {
			if h.OnPairingCode != nil {
				h.OnPairingCode(code)
			}
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.pairDelay):
		}

		cred = Credential{SessionID: c.id, DeviceID: ulid.Make().String(), PairedAt: time.Now().UnixMilli()}
		if err := c.creds.Put(ctx, whatsapp.CredentialPath(c.id), cred); err != nil {
			c.emit(func(h whatsapp.Handlers) {
				if h.OnAuthFailure != nil {
					h.OnAuthFailure(err)
				}
			})
			return
		}
	default:
		c.emit(func(h whatsapp.Handlers) {
			if h.OnAuthFailure != nil {
				h.OnAuthFailure(err)
			}
		})
		return
	}

	c.emit(func(h whatsapp.Handlers) {
		if h.OnAuthenticated != nil {
			h.OnAuthenticated()
		}
	})

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	c.emit(func(h whatsapp.Handlers) {
		if h.OnReady != nil {
			h.OnReady()
		}
	})
}

// emit runs fn unless the client has been destroyed.
func (c *Client) emit(fn func(whatsapp.Handlers)) {
	c.mu.Lock()
	alive := c.cancel != nil
	h := c.handlers
	c.mu.Unlock()
	if alive {
		fn(h)
	}
}

// Destroy stops the client.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.ready = false
	return nil
}

// Logout forgets the credential and reports a disconnect, as a phone
// unlinking the device would.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.creds.Delete(ctx, whatsapp.CredentialPath(c.id)); err != nil {
		return err
	}
	c.emit(func(h whatsapp.Handlers) {
		if h.OnDisconnected != nil {
			h.OnDisconnected("LOGOUT")
		}
	})
	return nil
}

func (c *Client) record(to string, hasMedia bool) (*whatsapp.MessageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return nil, whatsapp.ErrNotReady
	}
	if _, ok := c.chats[to]; !ok {
		c.chats[to] = whatsapp.Chat{ID: to, Name: strings.TrimSuffix(to, whatsapp.UserSuffix), IsGroup: whatsapp.IsGroupID(to)}
	}
	res := whatsapp.MessageResult{
		ID:        ulid.Make().String(),
		To:        to,
		Timestamp: time.Now().Unix(),
		HasMedia:  hasMedia,
	}
	c.outbox = append(c.outbox, res)
	return &res, nil
}

func (c *Client) SendText(ctx context.Context, to, text string) (*whatsapp.MessageResult, error) {
	res, err := c.record(to, false)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("sessionID", c.id).Str("to", to).Int("length", len(text)).Msg("loopback: message sent")
	return res, nil
}

func (c *Client) SendMedia(ctx context.Context, to string, media whatsapp.Media, caption string) (*whatsapp.MessageResult, error) {
	res, err := c.record(to, true)
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("sessionID", c.id).
		Str("to", to).
		Str("mimetype", media.MimeType).
		Int("bytes", len(media.Data)).
		Msg("loopback: media sent")
	return res, nil
}

func (c *Client) ListChats(ctx context.Context) ([]whatsapp.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return nil, whatsapp.ErrNotReady
	}
	out := make([]whatsapp.Chat, 0, len(c.chats))
	for _, chat := range c.chats {
		out = append(out, chat)
	}
	return out, nil
}

func (c *Client) GetChatByID(ctx context.Context, id string) (*whatsapp.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return nil, whatsapp.ErrNotReady
	}
	chat, ok := c.chats[id]
	if !ok {
		return nil, whatsapp.ErrChatNotFound
	}
	return &chat, nil
}

func (c *Client) ClearMessages(ctx context.Context, chatID string) (bool, error) {
	if _, err := c.GetChatByID(ctx, chatID); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.outbox[:0]
	for _, m := range c.outbox {
		if m.To != chatID {
			kept = append(kept, m)
		}
	}
	c.outbox = kept
	return true, nil
}

// Outbox returns the messages sent so far.
func (c *Client) Outbox() []whatsapp.MessageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]whatsapp.MessageResult(nil), c.outbox...)
}
