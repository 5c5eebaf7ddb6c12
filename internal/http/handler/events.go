package handler

import (
	"net/http"
	"slices"
	"time"

	"medbuddy/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type EventsHandler struct {
	Hub            *events.Hub
	AllowedOrigins []string
	Log            *zap.Logger
}

func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.AllowedOrigins, origin)
}

// Serve upgrades to a websocket and streams hub events until either side goes away.
// Anything the client sends is read and discarded.
func (h *EventsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(sub)
	log := h.Log.With(zap.String("subscriber", sub.ID))
	log.Info("websocket connected", zap.String("remote", r.RemoteAddr), zap.Int("subscribers", h.Hub.Len()))

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Info("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done:
			log.Info("subscriber dropped by hub")
			return
		case <-gone:
			log.Info("websocket disconnected")
			return
		}
	}
}
