package http

import (
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// StreamSnapshots forwards every published tick to the client until the
// client goes away or the instance stops. The current ready tick is sent
// first so clients render without waiting for the next advance.
func (h *Handler) StreamSnapshots(conn *websocket.Conn) {
	id := conn.Params("id")
	defer conn.Close()

	ch, cancel, err := h.simSvc.Subscribe(id)
	if err != nil {
		_ = conn.WriteJSON(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	defer cancel()

	if snap, err := h.simSvc.Snapshot(id); err == nil {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}

	// Reader goroutine exists only to notice the client disconnecting.
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
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				logrus.WithError(err).WithField("instance", id).Debug("http: stream write failed")
				return
			}
		case <-done:
			return
		}
	}
}
