package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atiendo/backend/internal/auth"
	"github.com/atiendo/backend/internal/http/middleware"
	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/triage"
)

type TriageRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	LastMessageID  string `json:"lastMessageId"`
	Channel        string `json:"channel" validate:"omitempty,oneof=whatsapp-bot voice-calls"`
}

// @Summary Triage a conversation
// @Description A bearer token is optional; when present the conversation must belong to its tenant.
// @Tags ai
// @Accept json
// @Produce json
// @Param payload body TriageRequest true "Conversation to triage"
// @Success 200 {object} models.TriageResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /ai/triage [post]
func (h *Handler) TriageConversation(c *gin.Context) {
	var tenantID string
	if token := middleware.BearerToken(c); token != "" {
		claims, err := auth.Parse(h.JWTSecret, token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
			return
		}
		tenantID = claims.TenantID
	}

	var req TriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return
	}

	res, err := h.Triage.Triage(c.Request.Context(), triage.Request{
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		LastMessageID:  req.LastMessageID,
		Channel:        models.Channel(req.Channel),
	})
	if err != nil {
		writeAppError(c, err, "TRIAGE_ERROR", "Triage failed")
		return
	}
	c.JSON(http.StatusOK, res)
}
