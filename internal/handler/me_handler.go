package handler

import (
	"context"
	"net/http"

	"convoyhub/internal/logger"
	"convoyhub/internal/middleware"
	"convoyhub/internal/models"

	"github.com/gin-gonic/gin"
)

// ProfileStore loads a user with their last known location.
type ProfileStore interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type MeHandler struct {
	users ProfileStore
	log   *logger.Logger
}

func NewMeHandler(users ProfileStore, log *logger.Logger) *MeHandler {
	return &MeHandler{users: users, log: log.With("handler", "me")}
}

// GetProfile returns the caller with convoy stats and last location.
func (h *MeHandler) GetProfile(c *gin.Context) {
	u, err := h.users.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": u,
		"stats": gin.H{
			"convoys_created": u.ConvoysCreated,
			"convoys_joined":  u.ConvoysJoined,
		},
		"has_location": u.Location != nil,
	})
}
