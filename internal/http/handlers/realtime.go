package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log: log.With("handler", "RealtimeHandler"),
		hub: hub,
	}
}

// GET /api/sse/stream?channels=<conversationID>[,...]
//
// Channels are conversation ids; a client subscribes to the conversations it
// renders. The stream is per-connection ordered; reconnecting clients rebuild
// view state from the persisted run.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("channels"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing channels"})
		return
	}

	client := h.hub.NewSSEClient()
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			h.hub.AddChannel(client, ch)
		}
	}
	h.log.Info("SSE stream open", "clientID", client.ID, "channels", raw)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSE stream closed", "clientID", client.ID)
}
