package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

// Inbound frame names.
const frameCreateSession = "create-session"

// inboundFrame is a message received from a websocket observer.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsConn is one websocket observer.
type wsConn struct {
	id   string
	conn *websocket.Conn
	obs  *event.Observer
	log  zerolog.Logger
}

func (s *Server) upgrader() websocket.Upgrader {
	origins := make(map[string]bool, len(s.config.CORSOrigins))
	for _, o := range s.config.CORSOrigins {
		origins[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origins["*"] || origin == "" || origins[origin]
		},
	}
}

// socket handles GET /ws. The connection receives the init snapshot
// followed by every lifecycle event and may send create-session frames.
func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	obs, err := s.bus.Subscribe(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		obs.Close()
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		obs:  obs,
	}
	c.log = logging.With().Str("conn", c.id).Str("remote", r.RemoteAddr).Logger()
	c.log.Info().Msg("Observer connected")

	go c.writePump()
	s.readPump(c)
}

// writePump forwards observer events to the socket. It owns all writes.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.obs.C():
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frameFor(e)); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles inbound frames until the connection fails, then
// unsubscribes the observer, which stops writePump.
func (s *Server) readPump(c *wsConn) {
	defer func() {
		c.obs.Close()
		c.log.Info().Uint64("dropped", c.obs.Dropped()).Msg("Observer disconnected")
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var in inboundFrame
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		s.handleInbound(c, in)
	}
}

func (s *Server) handleInbound(c *wsConn, in inboundFrame) {
	switch in.Event {
	case frameCreateSession:
		var req CreateSessionRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			c.log.Warn().Err(err).Msg("malformed create-session frame")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), wsWriteWait)
		defer cancel()
		if err := s.sessions.CreateSession(ctx, req.ID, req.Description); err != nil {
			c.log.Warn().Err(err).Str("sessionID", req.ID).Msg("create-session rejected")
		}
	default:
		c.log.Debug().Str("event", in.Event).Msg("unknown frame ignored")
	}
}
