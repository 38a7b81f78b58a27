package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveStatsRuns relays every recompute summary to the connected dashboard until
// either side goes away. Authentication happens in the middleware in front of it.
func LiveStatsRuns(cache *services.CacheService, baseLog *logger.Logger) gin.HandlerFunc {
	log := baseLog.With("handler", "LiveStatsRuns")
	return func(c *gin.Context) {
		if !cache.Available() {
			abortJSON(c, http.StatusServiceUnavailable, codeUnavailable, "live updates need redis")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// read pump, only to notice the client leaving
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pubsub := cache.Subscribe(ctx, services.StatsRunChannel)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				err := conn.WriteJSON(gin.H{
					"type": "stats_run",
					"data": msg.Payload,
				})
				if err != nil {
					log.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
