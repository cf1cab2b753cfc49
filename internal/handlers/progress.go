package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/video-transcriber/internal/progress"
)

// ProgressHandler streams pipeline progress events to websocket clients.
type ProgressHandler struct {
	hub *progress.Hub
}

// NewProgressHandler creates a progress stream handler.
func NewProgressHandler(hub *progress.Hub) *ProgressHandler {
	return &ProgressHandler{hub: hub}
}

// Handle subscribes the connection to the event hub and writes each event
// as a JSON message until the client goes away.
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(events)

	log.Println("Progress stream client connected")

	// Reads only serve to detect the client closing the socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Println("Progress stream client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				log.Printf("Progress stream write error: %v", err)
				return
			}
		}
	}
}
