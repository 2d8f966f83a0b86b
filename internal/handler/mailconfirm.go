package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/service"
)

type MailConfirmHandler struct {
	svc *service.MailConfirmService
}

func NewMailConfirmHandler(svc *service.MailConfirmService) *MailConfirmHandler {
	return &MailConfirmHandler{svc: svc}
}

func (h *MailConfirmHandler) Confirm(c *gin.Context) {
	if err := h.svc.Confirm(c.Request.Context(), c.Query("token")); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email confirmed"})
}

// Resend answers success for unknown identifiers as well, so the endpoint
// does not confirm account existence.
func (h *MailConfirmHandler) Resend(c *gin.Context) {
	var req struct {
		LoginOrEmail string `json:"loginOrEmail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.LoginOrEmail == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "INVALID_REQUEST"})
		return
	}

	if err := h.svc.Resend(c.Request.Context(), req.LoginOrEmail); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Confirmation sent if the account exists"})
}
