package handlers

import (
	"net/http"
	"time"

	"github.com/findosh/coinwatch/internal/services/marketdata"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// EventMarketUpdate names each pushed poll result
	EventMarketUpdate = "market:update"
)

// Event is one server push on the market stream
type Event struct {
	Event string            `json:"event"`
	Data  marketdata.Update `json:"data"`
}

// MarketStream upgrades to a websocket and pushes every poll result. The
// latest snapshot, if any, is sent first. Client messages are read only to
// notice disconnects.
func (h *Handler) MarketStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.poller.Subscribe()
	defer unsubscribe()

	if h.cfg.WSReadLimit > 0 {
		conn.SetReadLimit(h.cfg.WSReadLimit)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest, ok := h.poller.Latest(); ok {
		if err := writeEvent(conn, latest); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(conn, u); err != nil {
				h.log.DebugContext(r.Context(), "websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, u marketdata.Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(Event{Event: EventMarketUpdate, Data: u})
}
