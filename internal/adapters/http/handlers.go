package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

const userIDKey = "user_id"

// RequireUser authenticates a bearer token with gate and stores the user id.
func RequireUser(gate auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		tok := ""
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			tok = strings.TrimSpace(h[7:])
		}
		uid, err := gate.VerifyConnectionCredential(c.Request.Context(), tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// InternalTokenMiddleware guards collaborator hooks; an empty token disables them.
func InternalTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Internal-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

type InternalEventRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func handleInternalEvent(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InternalEventRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Event == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid event"})
			return
		}

		ctx := c.Request.Context()
		var err error
		switch req.Event {
		case core.EventRoomCreated:
			var p struct {
				RoomID domain.RoomID `json:"room_id"`
			}
			if json.Unmarshal(req.Data, &p) != nil || p.RoomID == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "room_id is required"})
				return
			}
			err = o.AnnounceRoom(ctx, p.RoomID)
		case core.EventUserCreated:
			var u domain.User
			if json.Unmarshal(req.Data, &u) != nil || u.ID == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
				return
			}
			err = o.AnnounceUser(ctx, u)
		case core.EventMessageUpdate, core.EventMessageDelete:
			var p struct {
				ID      domain.MessageID `json:"id"`
				Content *string          `json:"content"`
			}
			if json.Unmarshal(req.Data, &p) != nil || p.ID == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
				return
			}
			err = o.AnnounceMessageChange(ctx, req.Event, p.ID, p.Content)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported event"})
			return
		}

		switch {
		case errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case err != nil:
			log.Error().Err(err).Str("module", "adapters.http").Str("event", req.Event).Msg("internal event failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		default:
			c.JSON(http.StatusAccepted, gin.H{"status": "published"})
		}
	}
}
