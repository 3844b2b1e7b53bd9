package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zaqqye/seb_proctoring/internal/middleware"
	"github.com/zaqqye/seb_proctoring/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; rely on JWT auth.
		return true
	},
}

// Options tunes per-connection inbound limits.
type Options struct {
	MessagesPerSecond float64
	Burst             int
}

func (o Options) limiter() *rate.Limiter {
	if o.MessagesPerSecond <= 0 {
		return nil
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.MessagesPerSecond), burst)
}

// commandTimeout bounds how long one inbound command may wait on its lane.
const commandTimeout = 5 * time.Second

// Handler upgrades an authenticated request to the realtime channel. The
// session id is assigned here and announced in a connected message; clients
// then join_exam to enter a room.
func Handler(sessions *session.Registry, router *Router, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		id := uuid.NewString()
		client := newClient(id, conn, opts.limiter())
		sessions.Connect(id, user.UserID, client)
		client.log.Info("connected", "user_id", user.UserID, "role", user.Role)

		go client.writePump()
		client.sendJSON(Reply{Type: TypeConnected, Status: StatusOK, Data: connected{
			SessionID: id,
			UserID:    user.UserID,
			Time:      time.Now().UTC(),
		}})

		caller := Caller{SessionID: id, UserID: user.UserID, AccountRole: user.Role}
		client.readPump(func(raw []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			client.sendJSON(router.Handle(ctx, caller, raw))
		})

		if info, ok := sessions.Disconnect(id); ok {
			client.log.Info("disconnected", "exam_id", info.ExamID, "role", info.Role)
		}
	}
}
