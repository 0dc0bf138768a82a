package dashboard

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 5 * time.Second

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// Stream handles GET /sessions/{session_id}/stream. The connection receives
// the current snapshot and then one message per session update until either
// side closes. Inbound messages are ignored.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "session_id", string(sess.ID), "error", err)
		return
	}
	h.serveStream(conn, sess)
}

func (h *Handler) serveStream(conn *websocket.Conn, sess *Session) {
	defer conn.Close()

	updates, cancel := sess.Subscribe()
	defer cancel()

	if err := writeUpdate(conn, Update{Kind: UpdateSnapshot, Snapshot: sess.Snapshot()}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(streamWriteTimeout))
				return
			}
			if err := writeUpdate(conn, u); err != nil {
				h.log.Debug("stream write failed", "session_id", string(sess.ID), "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

func writeUpdate(conn *websocket.Conn, u Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(u)
}
