package www

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perchd/perch/db"
)

// wsConn adapts a gorilla connection to the rt.Conn contract and
// applies the idle read deadline.
type wsConn struct {
	conn *websocket.Conn
	idle time.Duration
}

func (c wsConn) ReadMessage() ([]byte, error) {
	if c.idle > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
			return nil, err
		}
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c wsConn) WriteJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

// handleRealtime upgrades the connection and hands it to the session
// protocol handler. The request goroutine is the session's goroutine;
// nothing here is shared between connections.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	summary, err := s.handler.Serve(
		r.Context(),
		wsConn{conn: conn, idle: s.idleTimeout},
	)
	if err != nil {
		// Disconnects land here too; the handler already released the
		// engine stream.
		s.logger.Warn(
			"session ended early",
			"id", summary.ID,
			"audio", summary.Duration,
			"error", err,
		)
		return
	}

	if !summary.Completed {
		return
	}

	model := ""
	if s.engine != nil {
		model = s.engine.Info().ID
	}
	s.persist(db.SessionRecord{
		ID:          summary.ID,
		Kind:        db.KindRealtime,
		Model:       model,
		StartedAt:   summary.StartedAt,
		Duration:    summary.Duration.Seconds(),
		SampleCount: summary.SampleCount,
		Text:        summary.Text,
	})
}
