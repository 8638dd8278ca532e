package handlers

import (
	"net/http"

	"collab-editor-api/internal/realtime"

	"github.com/gin-gonic/gin"
)

// PresenceHandler reports who is currently connected to a document's channel.
// GET /api/documents/:id/presence
func PresenceHandler(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		users := hub.Snapshot(c.Param("id"))
		if users == nil {
			users = []realtime.PresenceUser{}
		}
		c.JSON(http.StatusOK, gin.H{
			"count": len(users),
			"users": users,
		})
	}
}
