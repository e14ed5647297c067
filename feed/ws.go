package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justapithecus/tankreplay/ipc"
)

// wsFrameWriter writes each frame as one JSON text message.
type wsFrameWriter struct {
	conn *websocket.Conn
}

func (w *wsFrameWriter) WriteFrame(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// handleWS streams frames from timestep ?from=N (default 0) until the
// match finishes, the client goes away, or the server shuts down.
func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(rw, http.StatusBadRequest, "from must be a non-negative integer")
			return
		}
		from = n
	}

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients send nothing; reading surfaces their close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger := s.logger.With(map[string]any{"remote": r.RemoteAddr, "from": from})
	logger.Debug("feed client connected", nil)

	err = ipc.StreamFrom(ctx, s.state, s.meta, &wsFrameWriter{conn: conn}, from)
	switch {
	case err == nil:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match finished"),
			time.Now().Add(time.Second))
	case errors.Is(err, context.Canceled):
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"),
			time.Now().Add(time.Second))
	default:
		logger.Warn("feed client write failed", map[string]any{"error": err.Error()})
	}
	logger.Debug("feed client disconnected", nil)
}
