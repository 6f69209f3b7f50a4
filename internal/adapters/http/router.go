package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/peertutor/relay/internal/adapters/signal"
	"github.com/peertutor/relay/internal/config"
	"github.com/peertutor/relay/internal/core"
	"github.com/peertutor/relay/internal/domain"
	"github.com/peertutor/relay/internal/store"
)

// SetupRouter wires the WS endpoint and the REST surface around the relay:
// pushing notifications at users, draining offline inboxes, and fetching
// channel history for late joiners.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller,
	dispatch *core.Dispatcher, messages *store.MessageStore, notes *store.NotificationStore) *gin.Engine {

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	// Platform-side push: delivered live when the user is online, parked in
	// the notification store otherwise.
	api.POST("/users/:id/notify", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be valid JSON"})
			return
		}
		user := domain.UserID(c.Param("id"))
		delivered, err := dispatch.SendToUser(user, core.NewEvent(core.EventReceiveNotification, json.RawMessage(body)))
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("user", string(user)).Msg("notify failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
	})

	api.GET("/users/:id/notifications", func(c *gin.Context) {
		if notes == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store not configured"})
			return
		}
		list, err := notes.Drain(domain.UserID(c.Param("id")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
			return
		}
		if list == nil {
			list = []domain.Notification{}
		}
		c.JSON(http.StatusOK, list)
	})

	api.GET("/channels/:kind/:id/history", func(c *gin.Context) {
		if messages == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message store not configured"})
			return
		}
		kind, err := domain.ParseChannelKind(c.Param("kind"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key := domain.ChannelKey{Kind: kind, ID: c.Param("id")}
		msgs, err := messages.History(key.String(), cfg.HistoryLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
			return
		}
		// Stored newest-first; serve oldest-first for replay.
		c.JSON(http.StatusOK, lo.Reverse(msgs))
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
