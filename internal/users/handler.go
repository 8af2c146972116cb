package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"applypilot-backend/internal/shared/server/middleware"
	"applypilot-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

// me prefers the stored profile and falls back to the token claims when
// the sign-in sync never reached the store.
func (h *Handler) me(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "login required", nil)
		return
	}
	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotConfigured):
		user = User{
			ID:    userID,
			Email: middleware.UserEmailFromContext(c),
			Name:  middleware.UserNameFromContext(c),
		}
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"uid":        user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"pictureUrl": user.PictureURL,
	})
}
