// Package fake provides an in-memory whatsapp.Client whose lifecycle is
// driven by the caller. It is used by tests across the gateway.
package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/wagate/internal/whatsapp"
)

// SentMessage records one outbound call.
type SentMessage struct {
	To      string
	Text    string
	Media   *whatsapp.Media
	Caption string
}

// Client is a scripted whatsapp.Client.
type Client struct {
	ID string

	mu          sync.Mutex
	handlers    whatsapp.Handlers
	credentials whatsapp.CredentialStore
	initialized int
	destroyed   bool
	loggedOut   bool
	sent        []SentMessage
	chats       []whatsapp.Chat
	cleared     []string
	sendErr     error
	initErr     error

	destroyDelay time.Duration
	beforeInit   func(*Client)
}

// Driver builds fake clients and remembers every client it built.
type Driver struct {
	mu      sync.Mutex
	clients map[string][]*Client
	chats   []whatsapp.Chat
	initErr error
	created chan *Client

	destroyDelay time.Duration
	beforeInit   func(*Client)
}

// NewDriver returns an empty driver.
func NewDriver() *Driver {
	return &Driver{
		clients: make(map[string][]*Client),
		created: make(chan *Client, 128),
	}
}

// WithChats seeds every future client with chats.
func (d *Driver) WithChats(chats ...whatsapp.Chat) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chats = append(d.chats, chats...)
	return d
}

// FailInitialize makes every future client fail Initialize with err.
func (d *Driver) FailInitialize(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initErr = err
}

// SlowDestroy makes every future client take d to finish Destroy.
func (d *Driver) SlowDestroy(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyDelay = delay
}

// BeforeInitialize runs fn at the start of every future Initialize.
func (d *Driver) BeforeInitialize(fn func(*Client)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beforeInit = fn
}

// Factory satisfies whatsapp.Factory.
func (d *Driver) Factory(opts whatsapp.Options) (whatsapp.Client, error) {
	if opts.ID == "" {
		return nil, errors.New("fake: empty id")
	}
	d.mu.Lock()
	c := &Client{
		ID:          opts.ID,
		handlers:    opts.Handlers,
		credentials: opts.Credentials,
		chats:       append([]whatsapp.Chat(nil), d.chats...),
		initErr:     d.initErr,

		destroyDelay: d.destroyDelay,
		beforeInit:   d.beforeInit,
	}
	d.clients[opts.ID] = append(d.clients[opts.ID], c)
	d.mu.Unlock()

	select {
	case d.created <- c:
	default:
	}
	return c, nil
}

// Created streams clients as the driver builds them.
func (d *Driver) Created() <-chan *Client {
	return d.created
}

// Clients returns every client built for id, oldest first.
func (d *Driver) Clients(id string) []*Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Client(nil), d.clients[id]...)
}

// Latest returns the newest client for id, or nil.
func (d *Driver) Latest(id string) *Client {
	cs := d.Clients(id)
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

// WaitLatest waits until a client for id whose generation index is at
// least n (1-based) exists.
func (d *Driver) WaitLatest(id string, n int, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cs := d.Clients(id); len(cs) >= n {
			return cs[n-1], nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, fmt.Errorf("fake: no client #%d for %s", n, id)
}

// Initialize records the call.
func (c *Client) Initialize(ctx context.Context) error {
	if c.beforeInit != nil {
		c.beforeInit(c)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized++
	return c.initErr
}

// Destroy marks the client destroyed; later emits are ignored.
func (c *Client) Destroy(ctx context.Context) error {
	if c.destroyDelay > 0 {
		time.Sleep(c.destroyDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	return nil
}

// Logout forgets the stored credentials.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	creds := c.credentials
	c.mu.Unlock()
	if creds == nil {
		return nil
	}
	return creds.Delete(ctx, whatsapp.CredentialPath(c.ID))
}

// LoggedOut reports whether Logout was called.
func (c *Client) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

// Initialized reports how many times Initialize was called.
func (c *Client) Initialized() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Destroyed reports whether Destroy was called.
func (c *Client) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// FailSends makes subsequent sends return err.
func (c *Client) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns every recorded outbound message.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

// Cleared returns the chat ids passed to ClearMessages.
func (c *Client) Cleared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleared...)
}

func (c *Client) SendText(ctx context.Context, to, text string) (*whatsapp.MessageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sent = append(c.sent, SentMessage{To: to, Text: text})
	return &whatsapp.MessageResult{ID: fmt.Sprintf("msg-%d", len(c.sent)), To: to}, nil
}

func (c *Client) SendMedia(ctx context.Context, to string, media whatsapp.Media, caption string) (*whatsapp.MessageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	m := media
	c.sent = append(c.sent, SentMessage{To: to, Media: &m, Caption: caption})
	return &whatsapp.MessageResult{ID: fmt.Sprintf("msg-%d", len(c.sent)), To: to, HasMedia: true}, nil
}

func (c *Client) ListChats(ctx context.Context) ([]whatsapp.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]whatsapp.Chat(nil), c.chats...), nil
}

func (c *Client) GetChatByID(ctx context.Context, id string) (*whatsapp.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chat := range c.chats {
		if chat.ID == id {
			chat := chat
			return &chat, nil
		}
	}
	if strings.HasSuffix(id, whatsapp.UserSuffix) {
		return &whatsapp.Chat{ID: id}, nil
	}
	return nil, whatsapp.ErrChatNotFound
}

func (c *Client) ClearMessages(ctx context.Context, chatID string) (bool, error) {
	if _, err := c.GetChatByID(ctx, chatID); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, chatID)
	return true, nil
}

// live returns the callbacks unless the client was destroyed.
func (c *Client) live() (whatsapp.Handlers, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers, !c.destroyed
}

// EmitPairingCode fires OnPairingCode.
func (c *Client) EmitPairingCode(code string) {
	if h, ok := c.live(); ok && h.OnPairingCode != nil {
		h.OnPairingCode(code)
	}
}

// EmitAuthenticated fires OnAuthenticated.
func (c *Client) EmitAuthenticated() {
	if h, ok := c.live(); ok && h.OnAuthenticated != nil {
		h.OnAuthenticated()
	}
}

// EmitAuthFailure fires OnAuthFailure.
func (c *Client) EmitAuthFailure(err error) {
	if h, ok := c.live(); ok && h.OnAuthFailure != nil {
		h.OnAuthFailure(err)
	}
}

// EmitReady fires OnReady.
func (c *Client) EmitReady() {
	if h, ok := c.live(); ok && h.OnReady != nil {
		h.OnReady()
	}
}

// EmitDisconnected fires OnDisconnected.
func (c *Client) EmitDisconnected(reason string) {
	if h, ok := c.live(); ok && h.OnDisconnected != nil {
		h.OnDisconnected(reason)
	}
}

// Handlers exposes the callbacks even after Destroy, to simulate late
// events from a torn-down client.
func (c *Client) Handlers() whatsapp.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}
