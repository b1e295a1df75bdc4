package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pawfinder/apiserver/internal/notify"
)

// keepAliveInterval spaces SSE comment lines that keep idle streams
// open through proxies.
const keepAliveInterval = 30 * time.Second

// EventsHandler streams pet-channel events to clients over SSE.
//
// Opening a stream joins the pet's channel; closing it leaves. A client
// may hold any number of streams at once. Subscription is unauthenticated
// and delivery is at-most-once with no backfill — clients re-fetch the
// pet for current state.
type EventsHandler struct {
	hub *notify.Hub
}

func NewEventsHandler(hub *notify.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

func (h *EventsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "petID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
