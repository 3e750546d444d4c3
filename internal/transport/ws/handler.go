package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"heartstage/internal/show"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients never send application messages; the read side only
	// services pongs and close frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The stage display runs on a different origin
	},
}

// Handler serves the show state stream over WebSocket. It carries the same
// payloads as the SSE endpoint; the stage display prefers it because its
// player chrome keeps long-lived sockets alive more reliably than
// EventSource.
type Handler struct {
	engine *show.Engine
}

// NewHandler creates a new WebSocket handler
func NewHandler(engine *show.Engine) *Handler {
	return &Handler{engine: engine}
}

// ShowWS handles GET /v1/ws/show
func (h *Handler) ShowWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	// The request context dies when this handler returns; the stream's
	// lifetime is the socket's, ended by the pumps via stream.Close.
	stream, err := h.engine.OpenStream(context.Background(), 0)
	if err != nil {
		log.Printf("WebSocket stream error: %v", err)
		wsConn.Close()
		return
	}

	go h.writePump(wsConn, stream)
	go h.readPump(wsConn, stream)
}

func (h *Handler) readPump(wsConn *websocket.Conn, stream *show.Stream) {
	defer func() {
		stream.Close()
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, stream *show.Stream) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		stream.Close()
		wsConn.Close()
	}()

	for {
		select {
		case env, ok := <-stream.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
