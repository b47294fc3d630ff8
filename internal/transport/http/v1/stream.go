package v1

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/planner/internal/domain"
	"github.com/xiaot623/gogo/planner/internal/hub"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamRun upgrades to a WebSocket and pushes progress messages of the
// run. The first message is a snapshot of the stored run. The connection
// joins the hub before the snapshot is read, so a terminal message pushed
// in between is either reflected in the snapshot or delivered afterwards.
// GET /v1/runs/:run_id/stream
func (h *Handler) StreamRun(c echo.Context) error {
	if h.hub == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "streaming is not enabled"})
	}
	ctx := c.Request().Context()
	runID := c.Param("run_id")
	if _, err := h.service.GetRun(ctx, runID); err != nil {
		return errorJSON(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade stream for run %s: %v", runID, err)
		return err
	}

	conn := h.hub.NewConnection(ws, runID)
	h.hub.Register(conn)
	if h.subscribed != nil {
		h.subscribed(runID)
	}

	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		log.Printf("WARN: failed to load run %s for stream: %v", runID, err)
		h.closeStream(conn, websocket.CloseInternalServerErr, "run unavailable")
		return nil
	}

	snapshot := domain.ProgressMessage{
		Type:    "snapshot",
		RunID:   run.RunID,
		Ts:      time.Now().UnixMilli(),
		Percent: run.Percent,
		Message: string(run.Status),
	}
	if err := ws.WriteJSON(snapshot); err != nil {
		h.hub.Unregister(conn)
		conn.Close()
		return nil
	}
	if run.Status.IsTerminal() {
		h.closeStream(conn, websocket.CloseNormalClosure, string(run.Status))
		return nil
	}

	go h.writePump(conn)
	go h.readPump(conn)
	return nil
}

// closeStream ends a stream whose pumps were never started.
func (h *Handler) closeStream(conn *hub.Connection, code int, text string) {
	h.hub.Unregister(conn)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
	conn.Close()
}

// readPump discards client messages and unregisters on disconnect.
func (h *Handler) readPump(conn *hub.Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	readTimeout := 2 * h.pingInterval()
	conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: stream error: %v", err)
			}
			return
		}
	}
}

// writePump forwards hub messages and closes the stream after the run's
// terminal message.
func (h *Handler) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(h.pingInterval())
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	writeTimeout := defaultWriteTimeout
	if h.config != nil && h.config.WriteTimeout > 0 {
		writeTimeout = h.config.WriteTimeout
	}

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WARN: failed to write stream message: %v", err)
				return
			}
			if terminal(message) {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) pingInterval() time.Duration {
	if h.config != nil && h.config.PingInterval > 0 {
		return h.config.PingInterval
	}
	return defaultPingInterval
}

func terminal(message []byte) bool {
	var msg struct {
		Type domain.EventType `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return false
	}
	return msg.Type == domain.EventTypeRunDone || msg.Type == domain.EventTypeRunFailed
}
