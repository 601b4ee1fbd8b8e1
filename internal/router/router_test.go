package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/internal/whatsapp/fake"
)

// mapLookup is a Lookup over a fixed set of clients that counts calls.
type mapLookup struct {
	clients map[string]whatsapp.Client
	calls   int
}

func (m *mapLookup) Client(id string) (whatsapp.Client, bool) {
	m.calls++
	c, ok := m.clients[id]
	return c, ok
}

func newClient(t *testing.T, id string, chats ...whatsapp.Chat) *fake.Client {
	t.Helper()
	c, err := fake.NewDriver().WithChats(chats...).Factory(whatsapp.Options{ID: id})
	require.NoError(t, err)
	return c.(*fake.Client)
}

func TestDispatch_MissingSender(t *testing.T) {
	lookup := &mapLookup{clients: map[string]whatsapp.Client{}}
	r := New(lookup)

	res, err := r.Dispatch(context.Background(), "missing-id", SendText{To: "15551234567", Text: "hi"})
	assert.Nil(t, res)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing-id", nf.SessionID)
	assert.Equal(t, "The sender: missing-id is not found!", err.Error())
	assert.Equal(t, 1, lookup.calls)
}

func TestDispatch_SendTextForwardsOnce(t *testing.T) {
	c := newClient(t, "s1")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	res, err := r.Dispatch(context.Background(), "s1", SendText{To: "15551234567", Text: "hi"})
	require.NoError(t, err)

	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "15551234567@c.us", sent[0].To)
	assert.Equal(t, "hi", sent[0].Text)

	mr, ok := res.(*whatsapp.MessageResult)
	require.True(t, ok)
	assert.Equal(t, "15551234567@c.us", mr.To)
}

func TestDispatch_DeliveryError(t *testing.T) {
	c := newClient(t, "s1")
	cause := errors.New("phone offline")
	c.FailSends(cause)
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	_, err := r.Dispatch(context.Background(), "s1", SendText{To: "1555", Text: "hi"})

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "s1", de.SessionID)
	assert.Equal(t, "send-message", de.Op)
	assert.ErrorIs(t, err, cause)
}

func TestDispatch_SendMedia(t *testing.T) {
	c := newClient(t, "s1")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	media := whatsapp.Media{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}, Filename: "a.png"}
	_, err := r.Dispatch(context.Background(), "s1", SendMedia{To: "08123", Media: media, Caption: "look"})
	require.NoError(t, err)

	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "628123@c.us", sent[0].To)
	assert.Equal(t, "look", sent[0].Caption)
	require.NotNil(t, sent[0].Media)
	assert.Equal(t, "image/png", sent[0].Media.MimeType)
}

func TestDispatch_GroupByName(t *testing.T) {
	c := newClient(t, "s1",
		whatsapp.Chat{ID: "111@c.us", Name: "Family"},
		whatsapp.Chat{ID: "team@g.us", Name: "Family", IsGroup: true},
	)
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	_, err := r.Dispatch(context.Background(), "s1", SendGroupMessage{Group: "family", Text: "dinner"})
	require.NoError(t, err)

	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "team@g.us", sent[0].To)
}

func TestDispatch_GroupByID(t *testing.T) {
	c := newClient(t, "s1")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	_, err := r.Dispatch(context.Background(), "s1", SendGroupMessage{ID: "abc@g.us", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "abc@g.us", c.Sent()[0].To)
}

func TestDispatch_GroupNotFound(t *testing.T) {
	c := newClient(t, "s1")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	_, err := r.Dispatch(context.Background(), "s1", SendGroupMessage{Group: "Nobody", Text: "x"})

	var gnf *GroupNotFoundError
	require.ErrorAs(t, err, &gnf)
	assert.Equal(t, "No group found with name: Nobody", gnf.Error())
	assert.Empty(t, c.Sent())
}

func TestDispatch_GroupLookupIsPerSession(t *testing.T) {
	withGroup := newClient(t, "s1", whatsapp.Chat{ID: "team@g.us", Name: "Team", IsGroup: true})
	without := newClient(t, "s2")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": withGroup, "s2": without}})

	_, err := r.Dispatch(context.Background(), "s2", SendGroupMessage{Group: "Team", Text: "x"})
	var gnf *GroupNotFoundError
	assert.ErrorAs(t, err, &gnf)
	assert.Empty(t, withGroup.Sent())
}

func TestDispatch_ClearChat(t *testing.T) {
	c := newClient(t, "s1")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}})

	res, err := r.Dispatch(context.Background(), "s1", ClearChat{Number: "15551234567"})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	assert.Equal(t, []string{"15551234567@c.us"}, c.Cleared())
}

type slowOp struct{}

func (slowOp) Name() string { return "slow" }

func (slowOp) Apply(ctx context.Context, client whatsapp.Client) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatch_Timeout(t *testing.T) {
	c := newClient(t, "s1")
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": c}}, WithTimeout(20*time.Millisecond))

	_, err := r.Dispatch(context.Background(), "s1", slowOp{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve(t *testing.T) {
	r := New(&mapLookup{clients: map[string]whatsapp.Client{"s1": newClient(t, "s1")}})

	assert.NoError(t, r.Resolve("s1"))

	var nf *NotFoundError
	require.ErrorAs(t, r.Resolve("ghost"), &nf)
	assert.Equal(t, "ghost", nf.SessionID)
}
