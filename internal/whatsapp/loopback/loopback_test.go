package loopback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/whatsapp"
)

type recorder struct {
	codes chan string
	auth  chan struct{}
	ready chan struct{}
	disc  chan string
}

func newRecorder() *recorder {
	return &recorder{
		codes: make(chan string, 4),
		auth:  make(chan struct{}, 4),
		ready: make(chan struct{}, 4),
		disc:  make(chan string, 4),
	}
}

func (r *recorder) handlers() whatsapp.Handlers {
	return whatsapp.Handlers{
		OnPairingCode:   func(code string) { r.codes <- code },
		OnAuthenticated: func() { r.auth <- struct{}{} },
		OnReady:         func() { r.ready <- struct{}{} },
		OnDisconnected:  func(reason string) { r.disc <- reason },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestLoopback_PairsThenRestores(t *testing.T) {
	ctx := context.Background()
	creds := storage.New(t.TempDir())
	d := &Driver{PairDelay: 10 * time.Millisecond}

	rec := newRecorder()
	c, err := d.Factory(whatsapp.Options{ID: "s1", Credentials: creds, Handlers: rec.handlers()})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))

	code := waitFor(t, rec.codes)
	assert.NotEmpty(t, code)
	waitFor(t, rec.auth)
	waitFor(t, rec.ready)
	require.True(t, creds.Exists(ctx, whatsapp.CredentialPath("s1")))
	require.NoError(t, c.Destroy(ctx))

	// second start skips pairing
	rec2 := newRecorder()
	c2, err := d.Factory(whatsapp.Options{ID: "s1", Credentials: creds, Handlers: rec2.handlers()})
	require.NoError(t, err)
	require.NoError(t, c2.Initialize(ctx))
	waitFor(t, rec2.ready)
	assert.Empty(t, rec2.codes)
}

func TestLoopback_SendRequiresReady(t *testing.T) {
	ctx := context.Background()
	d := &Driver{PairDelay: time.Hour}
	c, err := d.Factory(whatsapp.Options{ID: "s1", Credentials: storage.New(t.TempDir())})
	require.NoError(t, err)

	_, err = c.SendText(ctx, "1555@c.us", "hi")
	assert.ErrorIs(t, err, whatsapp.ErrNotReady)
}

func TestLoopback_SendAndClear(t *testing.T) {
	ctx := context.Background()
	d := &Driver{
		PairDelay: time.Millisecond,
		Groups:    []whatsapp.Chat{{ID: "team@g.us", Name: "Team", IsGroup: true}},
	}
	rec := newRecorder()
	c, err := d.Factory(whatsapp.Options{ID: "s1", Credentials: storage.New(t.TempDir()), Handlers: rec.handlers()})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))
	waitFor(t, rec.ready)

	res, err := c.SendText(ctx, "1555@c.us", "hi")
	require.NoError(t, err)
	assert.Equal(t, "1555@c.us", res.To)
	assert.NotEmpty(t, res.ID)

	chats, err := c.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	ok, err := c.ClearMessages(ctx, "1555@c.us")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.(*Client).Outbox())

	_, err = c.ClearMessages(ctx, "nobody@c.us")
	assert.ErrorIs(t, err, whatsapp.ErrChatNotFound)
}

func TestLoopback_Logout(t *testing.T) {
	ctx := context.Background()
	creds := storage.New(t.TempDir())
	rec := newRecorder()
	c, err := (&Driver{}).Factory(whatsapp.Options{ID: "s1", Credentials: creds, Handlers: rec.handlers()})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))
	waitFor(t, rec.ready)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, "LOGOUT", waitFor(t, rec.disc))
	assert.False(t, creds.Exists(ctx, whatsapp.CredentialPath("s1")))
}
