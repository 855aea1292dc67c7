package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zaqqye/simlab_backend/internal/middleware"
	"github.com/zaqqye/simlab_backend/internal/models"
)

var upgrader = websocket.Upgrader{
	// Any origin; the route sits behind JWT auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler streams scheduling and grading events to admins and
// instructors. ?room_id=a,b limits the stream to events touching those rooms.
func EventsHandler(hub *EventHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if user.Role != models.RoleAdmin && user.Role != models.RoleInstructor {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		allowed := map[string]struct{}{}
		for _, id := range strings.Split(c.Query("room_id"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				allowed[id] = struct{}{}
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newEventClient(hub, conn, allowed)
		if !hub.attach(client) {
			conn.Close()
			return
		}

		go client.writePump()
		client.readPump()
	}
}
