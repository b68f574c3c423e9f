package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/examrender/internal/engine"
	"github.com/ziadkadry99/examrender/internal/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// mountMessage is exchanged over /ws/mount. Clients send "show"; the
// server answers with "ready", "mount" or "error".
type mountMessage struct {
	Type     string `json:"type"`
	Session  string `json:"session,omitempty"`
	Content  string `json:"content,omitempty"`
	HTML     string `json:"html,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// socketMount is a live.Mount that pushes replacements to one connection.
type socketMount struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	session string
}

func (m *socketMount) send(msg mountMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.Session = m.session
	return m.conn.WriteJSON(msg)
}

func (m *socketMount) Replace(html string) error {
	return m.send(mountMessage{Type: "mount", HTML: html})
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	target := &socketMount{conn: conn, session: uuid.NewString()}
	view := live.NewView(s.renderer, target)
	logger := s.logger.With("session", target.session)
	logger.Info("mount connected")

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		logger.Info("mount disconnected")
	}()

	if err := target.send(mountMessage{Type: "ready"}); err != nil {
		return
	}

	for {
		var msg mountMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("websocket read error", "error", err)
			}
			return
		}
		if msg.Type != "show" {
			target.send(mountMessage{Type: "error", Content: "unknown message type: " + msg.Type})
			continue
		}

		// Shows run concurrently so a newer one can supersede a pending one.
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			err := view.Show(ctx, content)
			switch {
			case err == nil, errors.Is(err, live.ErrSuperseded):
			case errors.Is(err, engine.ErrEngineFailure):
				logger.Warn("showing raw content", "error", err)
				target.send(mountMessage{Type: "error", Content: err.Error(), Fallback: true})
			case ctx.Err() != nil:
			default:
				logger.Error("show failed", "error", err)
				target.send(mountMessage{Type: "error", Content: err.Error()})
			}
		}(msg.Content)
	}
}
