package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/router"
	"github.com/opencode-ai/wagate/pkg/types"
)

func TestWriteDispatchError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "unknown sender",
			err:    &router.NotFoundError{SessionID: "s9"},
			status: http.StatusUnprocessableEntity,
			body:   `{"status":false,"message":"The sender: s9 is not found!"}`,
		},
		{
			name:   "unknown group",
			err:    &router.DeliveryError{SessionID: "s1", Op: "send-group-message", Err: &router.GroupNotFoundError{Name: "Team"}},
			status: http.StatusUnprocessableEntity,
			body:   `{"status":false,"message":"No group found with name: Team"}`,
		},
		{
			name:   "delivery",
			err:    &router.DeliveryError{SessionID: "s1", Op: "send-message", Err: errors.New("socket closed")},
			status: http.StatusInternalServerError,
			body:   `{"status":false,"response":"socket closed"}`,
		},
		{
			name:   "other",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   `{"status":false,"response":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDispatchError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "session not found", resp.Error.Message)
}

func TestFrameFor(t *testing.T) {
	snap := frameFor(event.Event{Type: event.Init, Data: event.SnapshotData{Sessions: []types.SessionDescriptor{{ID: "a"}}}})
	assert.Equal(t, "init", snap.Event)
	assert.Equal(t, []types.SessionDescriptor{{ID: "a"}}, snap.Data)

	removed := frameFor(event.Event{Type: event.SessionRemoved, SessionID: "a", Data: event.SessionData{ID: "a"}})
	assert.Equal(t, "a", removed.Data)

	msg := frameFor(event.Event{Type: event.StatusMessage, SessionID: "a", Data: event.MessageData{ID: "a", Text: "hi"}})
	assert.Equal(t, event.MessageData{ID: "a", Text: "hi"}, msg.Data)

	qr := frameFor(event.Event{Type: event.PairingCodeIssued, SessionID: "a", Data: event.PairingCodeData{ID: "a", Code: "xyz"}})
	data, ok := qr.Data.(QRData)
	require.True(t, ok)
	assert.Equal(t, "xyz", data.Code)
	assert.Contains(t, data.Src, "data:image/png;base64,")
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	assert.Equal(t, "q", extractToken(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", extractToken(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, extractToken(r))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", mimeType("image/png; charset=binary", "x.bin"))
	assert.Equal(t, "image/jpeg", mimeType("", "photo.jpg"))
	assert.Equal(t, "application/pdf", mimeType(defaultMimeType, "doc.pdf"))
	assert.Equal(t, defaultMimeType, mimeType("", "noext"))
}

func TestMediaFetcher_FromURL(t *testing.T) {
	payload := []byte("\x89PNG fake image")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(payload)
		case "/big":
			w.Write(bytes.Repeat([]byte("x"), 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	m := newMediaFetcher(1024, 0)
	ctx := context.Background()

	media, err := m.fromURL(ctx, ts.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, payload, media.Data)
	assert.Equal(t, "logo.png", media.Filename)
	assert.Equal(t, "image/png", media.MimeType)

	_, err = m.fromURL(ctx, ts.URL+"/big")
	assert.ErrorIs(t, err, ErrMediaTooLarge)

	_, err = m.fromURL(ctx, ts.URL+"/missing")
	assert.Error(t, err)

	_, err = m.fromURL(ctx, "file:///etc/passwd")
	assert.Error(t, err)
}

func TestSendMedia_Upload(t *testing.T) {
	env := newTestEnv(t)
	client := env.session(t, "s1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("sender", "s1"))
	require.NoError(t, mw.WriteField("number", "15551234567"))
	require.NoError(t, mw.WriteField("caption", "look"))
	fw, err := mw.CreateFormFile("file", "note.txt")
	require.NoError(t, err)
	fw.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/send-media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := client.Sent()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Media)
	assert.Equal(t, []byte("hello"), sent[0].Media.Data)
	assert.Equal(t, "note.txt", sent[0].Media.Filename)
	assert.Equal(t, "text/plain", sent[0].Media.MimeType)
	assert.Equal(t, "look", sent[0].Caption)
	assert.Equal(t, "15551234567@c.us", sent[0].To)
}

func TestSendMedia_RequiresFile(t *testing.T) {
	env := newTestEnv(t)
	env.session(t, "s1")

	w := env.do(t, "POST", "/send-media", map[string]string{"sender": "s1", "number": "1"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, map[string]any{"file": msgInvalidValue}, decodeEnvelope(t, w)["message"])
}

func TestSendMedia_UnknownSenderSkipsFetch(t *testing.T) {
	env := newTestEnv(t)
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer ts.Close()

	w := env.do(t, "POST", "/send-media", map[string]string{
		"sender": "ghost", "number": "1", "file": ts.URL + "/logo.png",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "The sender: ghost is not found!", decodeEnvelope(t, w)["message"])
	assert.Zero(t, hits.Load())
}

func TestSendMedia_UnknownSenderWithoutFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/send-media", map[string]string{"sender": "ghost", "number": "1"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "The sender: ghost is not found!", decodeEnvelope(t, w)["message"])
}

func TestSendMedia_URLTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.session(t, "s1")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	defer ts.Close()

	w := env.do(t, "POST", "/send-media", map[string]string{
		"sender": "s1", "number": "1", "file": ts.URL + "/a.bin",
	}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
