package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zoobzio/magma"
)

// ReloadMessage is pushed to live-reload clients each time a flow's
// artifact is saved
type ReloadMessage struct {
	Type     string       `json:"type"`
	FlowID   magma.FlowID `json:"flow_id"`
	Route    string       `json:"route"`
	MIMEType string       `json:"mime_type"`
	Modified time.Time    `json:"modified"`
	Size     int          `json:"size"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleReload streams a ReloadMessage for the flow's current artifact and
// for every later save. It needs a store that implements magma.Subscriber.
func (s *Server) handleReload(c *gin.Context) {
	flow, ok := s.flowParam(c)
	if !ok {
		return
	}
	sub, ok := s.loader.(magma.Subscriber)
	if !ok {
		s.error(c, http.StatusNotImplemented, "store does not support subscriptions")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	artifacts, err := sub.Watch(ctx, flow.ID())
	if err != nil {
		s.logger.Error("failed to subscribe to artifacts",
			"flow", flow.ID(), "error", err)
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "flow", flow.ID(), "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients never send anything; reading only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case artifact, ok := <-artifacts:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ReloadMessage{
				Type:     "saved",
				FlowID:   artifact.ID,
				Route:    flow.Route().String(),
				MIMEType: artifact.MIMEType,
				Modified: artifact.Modified,
				Size:     len(artifact.Data),
			}); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
