package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/calendar"
)

const (
	eventWriteWait = 10 * time.Second
	eventPongWait  = 60 * time.Second
)

// EventsHandler streams the upcoming summary over a websocket, once on
// connect and again after every delivery to the view.
type EventsHandler struct {
	view      *View
	loc       *time.Location
	now       func() time.Time
	upgrader  websocket.Upgrader
	responder responder

	stopOnce sync.Once
	stop     chan struct{}
}

func NewEventsHandler(view *View, loc *time.Location, now func() time.Time, logger *slog.Logger) *EventsHandler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &EventsHandler{
		view: view,
		loc:  loc,
		now:  now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		responder: newResponder(logger),
		stop:      make(chan struct{}),
	}
}

// Close ends every open stream. Hijacked connections are not tracked by
// http.Server.Shutdown, so the server registers Close as a shutdown hook.
func (h *EventsHandler) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.view == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.responder.route(r.Context(), "GET /events")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.InfoContext(r.Context(), "event stream opened")
	sent := 0
	for {
		changed := h.view.Changed()
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := conn.WriteJSON(h.event()); err != nil {
			logger.InfoContext(r.Context(), "event stream closed", "events_sent", sent, "error", err)
			return
		}
		sent++

		select {
		case <-changed:
		case <-gone:
			logger.InfoContext(r.Context(), "event stream closed by client", "events_sent", sent)
			return
		case <-h.stop:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(eventWriteWait))
			return
		}
	}
}

func (h *EventsHandler) event() eventDTO {
	today := h.now().In(h.loc)
	return eventDTO{
		Today: calendar.DateKey(today),
		Days:  toSummaryDTOs(booking.Upcoming(h.view.Table(), calendar.DateKey(today))),
	}
}

type eventDTO struct {
	Today string          `json:"today"`
	Days  []daySummaryDTO `json:"days"`
}
