package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const eventWriteTimeout = 10 * time.Second

// EventsWS streams every published event as one JSON text message. When the
// hub drops this subscriber for falling behind, the socket is closed with
// StatusTryAgainLater so the client knows to reconnect and resync.
//
// Browsers may only connect from the server's own origin or from a host
// listed in OriginPatterns.
func EventsWS(w http.ResponseWriter, r *http.Request) {
	if Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Event hub not initialized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: OriginPatterns,
	})
	if err != nil {
		log.Printf("[hub] failed to accept events websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := Hub.Subscribe(EventBuffer)
	defer unsubscribe()

	// Client messages are ignored; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "event stream overflow")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[hub] marshal event: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
