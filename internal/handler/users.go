package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/service"
)

type UsersHandler struct {
	users *service.UsersService
	gate  *service.FreshnessGate
}

func NewUsersHandler(users *service.UsersService, gate *service.FreshnessGate) *UsersHandler {
	return &UsersHandler{users: users, gate: gate}
}

type selfUserResponse struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Login          string  `json:"login"`
	Name           string  `json:"name"`
	Role           string  `json:"role"`
	EmailConfirmed bool    `json:"emailConfirmed"`
	Phone          *string `json:"phone"`
	CountryID      *string `json:"countryId"`
	Language       string  `json:"language"`
	Theme          string  `json:"theme"`
	UpdatedAt      string  `json:"updatedAt"`
}

func toSelfUser(user *model.User) selfUserResponse {
	return selfUserResponse{
		ID:             user.ID,
		Email:          user.Email,
		Login:          user.Login,
		Name:           user.Name,
		Role:           string(user.Role),
		EmailConfirmed: user.EmailConfirmed,
		Phone:          user.Phone,
		CountryID:      user.CountryID,
		Language:       string(user.Language),
		Theme:          string(user.Theme),
		UpdatedAt:      user.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// GetMe serves the profile, honoring the conditional-read protocol when
// the client sends If-User-Updated-Since. The gate decides from the
// freshness key alone; profile content is never served from the cache.
func (h *UsersHandler) GetMe(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "UNAUTHORIZED"})
		return
	}

	if hint := c.GetHeader(freshnessHeader); hint != "" {
		clientUpdatedAt, err := time.Parse(time.RFC3339Nano, hint)
		if err != nil {
			clientUpdatedAt, err = time.Parse(time.RFC3339, hint)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "INVALID_REQUEST"})
			return
		}

		result, err := h.gate.Check(c.Request.Context(), user.ID, clientUpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Code: "INTERNAL"})
			return
		}

		switch result {
		case service.FreshnessNotModified:
			c.Status(http.StatusNotModified)
		case service.FreshnessMiss:
			// Client must retry without the header and repopulate.
			c.JSON(http.StatusPreconditionFailed, model.ErrorResponse{Code: "CACHE_MISS"})
		case service.FreshnessStale:
			c.JSON(http.StatusPreconditionFailed, model.ErrorResponse{Code: "CACHE_STALE"})
		}
		return
	}

	profile, err := h.users.GetSelf(c.Request.Context(), user.ID)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSelfUser(profile))
}

func (h *UsersHandler) UpdateMe(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "UNAUTHORIZED"})
		return
	}

	var req model.UpdateSelfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "INVALID_REQUEST"})
		return
	}

	updated, err := h.users.UpdateSelf(c.Request.Context(), user.ID, req)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSelfUser(updated))
}
