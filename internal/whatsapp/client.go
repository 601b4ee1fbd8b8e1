// Package whatsapp defines the boundary between the gateway and the
// messaging-protocol client that drives one account.
//
// The gateway never speaks the wire protocol itself. A driver supplies a
// Factory; the supervisor calls it once per session with the session id,
// the credential store the client must use for its own persistence, and the
// lifecycle callbacks to invoke.
package whatsapp

import (
	"context"
	"errors"
)

var (
	// ErrChatNotFound is returned by GetChatByID for unknown chats.
	ErrChatNotFound = errors.New("chat not found")
	// ErrNotReady is returned by operations on a client that has not finished pairing.
	ErrNotReady = errors.New("client not ready")
)

// Handlers are the lifecycle callbacks a client invokes.
// They may be called from any goroutine and must not block for long.
type Handlers struct {
	OnPairingCode   func(code string)
	OnAuthenticated func()
	OnAuthFailure   func(err error)
	OnReady         func()
	OnDisconnected  func(reason string)
}

// CredentialStore is the persistence a client uses for its own
// credentials. Keys are path segments; see CredentialPath.
type CredentialStore interface {
	Get(ctx context.Context, path []string, v any) error
	Put(ctx context.Context, path []string, v any) error
	Delete(ctx context.Context, path []string) error
}

// credentialsKey is the credential store prefix shared by all sessions.
const credentialsKey = "credentials"

// CredentialPath is the credential store key for a session id.
func CredentialPath(id string) []string {
	return []string{credentialsKey, id}
}

// CredentialRoot is the credential store path holding every session's key.
func CredentialRoot() []string {
	return []string{credentialsKey}
}

// Media is an attachment to send.
type Media struct {
	MimeType string `json:"mimetype"`
	Data     []byte `json:"-"`
	Filename string `json:"filename,omitempty"`
}

// Chat is a conversation visible to the account.
type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}

// MessageResult describes an accepted outbound message.
type MessageResult struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
	HasMedia  bool   `json:"hasMedia,omitempty"`
}

// Client is one account's connection.
type Client interface {
	// Initialize starts the client. Lifecycle callbacks follow asynchronously.
	Initialize(ctx context.Context) error
	// Destroy tears the client down. No callbacks fire afterwards.
	Destroy(ctx context.Context) error
	// Logout unlinks the account and forgets its credentials. The client
	// still has to be destroyed.
	Logout(ctx context.Context) error

	SendText(ctx context.Context, to, text string) (*MessageResult, error)
	SendMedia(ctx context.Context, to string, media Media, caption string) (*MessageResult, error)
	ListChats(ctx context.Context) ([]Chat, error)
	GetChatByID(ctx context.Context, id string) (*Chat, error)
	ClearMessages(ctx context.Context, chatID string) (bool, error)
}

// Options are passed to a Factory for each new client.
type Options struct {
	ID          string
	Credentials CredentialStore
	Handlers    Handlers
}

// Factory constructs a client. It must not block on the network; the
// connection is started by Initialize.
type Factory func(opts Options) (Client, error)
