package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// WebSocket message types for the session feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeSession = "session"
	MsgTypePong    = "pong"
	MsgTypeError   = "error"
)

const wsWriteTimeout = 10 * time.Second

// WSMessage is one feed frame
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// FeedHandlerImpl pushes the session to WebSocket clients on every change
type FeedHandlerImpl struct {
	ctrl     SessionController
	feed     ChangeFeed
	notifier Notifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(ctrl SessionController, feed ChangeFeed, notifier Notifier, log zerolog.Logger) FeedHandler {
	return &FeedHandlerImpl{
		ctrl:     ctrl,
		feed:     feed,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Origins are filtered by the CORS middleware
				return true
			},
		},
		log: log,
	}
}

// HandleFeed upgrades the connection, sends the current session, and sends
// it again after each change. Clients may send {"type":"ping"}.
func (h *FeedHandlerImpl) HandleFeed(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	changes, unsubscribe := h.feed.Subscribe()
	defer unsubscribe()

	h.log.Debug().Str("remote", c.RealIP()).Msg("feed client connected")

	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug().Err(err).Msg("feed connection error")
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	if err := h.sendSession(ws); err != nil {
		return nil
	}

	for {
		select {
		case <-done:
			h.log.Debug().Msg("feed client disconnected")
			return nil
		case <-changes:
			if err := h.sendSession(ws); err != nil {
				return nil
			}
		case <-pings:
			if err := h.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		}
	}
}

func (h *FeedHandlerImpl) sendSession(ws *websocket.Conn) error {
	payload, err := json.Marshal(currentView(h.ctrl, h.notifier))
	if err != nil {
		return h.send(ws, WSMessage{Type: MsgTypeError, Payload: mustJSON(map[string]string{"message": err.Error()})})
	}
	return h.send(ws, WSMessage{Type: MsgTypeSession, Payload: payload})
}

func (h *FeedHandlerImpl) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.WriteJSON(msg); err != nil {
		h.log.Debug().Err(err).Msg("failed to send feed message")
		return err
	}
	return nil
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
