package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/service"
	"github.com/atiendo/backend/internal/utils"
)

const (
	headerAccountKey = "x-account-key"
	headerTenantID   = "x-tenant-id"
)

type BotMessage struct {
	Text string `json:"text,omitempty"`
	Body string `json:"body,omitempty"`
}

type BotMessageData struct {
	From      string      `json:"from" validate:"required"`
	Name      string      `json:"name,omitempty"`
	Body      string      `json:"body,omitempty"`
	Answer    string      `json:"answer,omitempty"`
	Message   *BotMessage `json:"message,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
}

type BotWebhookRequest struct {
	Event string         `json:"event"`
	Data  BotMessageData `json:"data"`
}

// Text is the first non-empty of body, answer, message.text and message.body.
func (r BotWebhookRequest) Text() *string {
	candidates := []string{r.Data.Body, r.Data.Answer}
	if r.Data.Message != nil {
		candidates = append(candidates, r.Data.Message.Text, r.Data.Message.Body)
	}
	for _, s := range candidates {
		if strings.TrimSpace(s) != "" {
			v := s
			return &v
		}
	}
	return nil
}

type VoiceWebhookRequest struct {
	PhoneNumber string    `json:"phone_number" validate:"required"`
	StartedAt   time.Time `json:"started_at" validate:"required"`
	EndedAt     time.Time `json:"ended_at" validate:"required,gtefield=StartedAt"`
	Outcome     string    `json:"outcome" validate:"required"`
	Transcript  string    `json:"transcript,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	CallID      string    `json:"call_id,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Name        string    `json:"name,omitempty"`
}

func (r VoiceWebhookRequest) DurationSeconds() int {
	return int(r.EndedAt.Sub(r.StartedAt) / time.Second)
}

func (r VoiceWebhookRequest) Text() *string {
	for _, s := range []string{r.Transcript, r.Summary} {
		if strings.TrimSpace(s) != "" {
			v := s
			return &v
		}
	}
	return nil
}

type WebhookResponse struct {
	Status         string `json:"status"`
	EventID        string `json:"eventId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	TicketID       string `json:"ticketId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

// @Summary WhatsApp bot webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Param x-account-key header string false "Bot account key"
// @Param x-tenant-id header string false "Tenant id"
// @Param payload body BotWebhookRequest true "Bot event"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhooks/whatsapp-bot [post]
func (h *Handler) BotWebhook(c *gin.Context) {
	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	var req BotWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return
	}
	key, err := utils.IdempotencyKey(string(models.ChannelWhatsAppBot), req)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid payload", err.Error())
		return
	}

	metadata := map[string]any{}
	if req.Event != "" {
		metadata["event"] = req.Event
	}
	if req.Data.MessageID != "" {
		metadata["providerMessageId"] = req.Data.MessageID
	}
	eventType := req.Event
	if eventType == "" {
		eventType = "message.received"
	}

	h.process(c, service.InboundEvent{
		Source:         models.ChannelWhatsAppBot,
		Type:           eventType,
		AccountKey:     h.accountKey(c),
		TenantID:       strings.TrimSpace(c.GetHeader(headerTenantID)),
		Phone:          req.Data.From,
		Name:           req.Data.Name,
		Text:           req.Text(),
		Metadata:       metadata,
		RawPayload:     raw,
		IdempotencyKey: key,
	})
}

// @Summary Voice call webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Param x-account-key header string false "Voice account key"
// @Param payload body VoiceWebhookRequest true "Completed call"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhooks/voice-calls [post]
func (h *Handler) VoiceWebhook(c *gin.Context) {
	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	var req VoiceWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return
	}
	key, err := utils.IdempotencyKey(string(models.ChannelVoiceCalls), req)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid payload", err.Error())
		return
	}

	metadata := map[string]any{
		"outcome":         req.Outcome,
		"durationSeconds": req.DurationSeconds(),
		"startedAt":       req.StartedAt,
		"endedAt":         req.EndedAt,
	}
	if req.CallID != "" {
		metadata["callId"] = req.CallID
	}
	if req.Summary != "" {
		metadata["summary"] = req.Summary
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		tenantID = strings.TrimSpace(c.GetHeader(headerTenantID))
	}

	h.process(c, service.InboundEvent{
		Source:         models.ChannelVoiceCalls,
		Type:           "call.completed",
		AccountKey:     h.accountKey(c),
		TenantID:       tenantID,
		Phone:          req.PhoneNumber,
		Name:           req.Name,
		Text:           req.Text(),
		Metadata:       metadata,
		RawPayload:     raw,
		IdempotencyKey: key,
	})
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unreadable body", err.Error())
		return nil, false
	}
	return raw, true
}

func (h *Handler) accountKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(headerAccountKey)); key != "" {
		return key
	}
	if h.DefaultAccountKey != "" {
		return h.DefaultAccountKey
	}
	return "default"
}

func (h *Handler) process(c *gin.Context, in service.InboundEvent) {
	out, err := h.Pipeline.Process(c.Request.Context(), in)
	if errors.Is(err, service.ErrInFlight) {
		writeError(c, http.StatusConflict, "IN_FLIGHT", "Event is already being processed", gin.H{"idempotencyKey": in.IdempotencyKey})
		return
	}
	if err != nil {
		writeAppError(c, err, "PROCESSING_ERROR", "Processing failed")
		return
	}
	c.JSON(http.StatusOK, WebhookResponse{
		Status:         out.Status,
		EventID:        out.EventID,
		ConversationID: out.ConversationID,
		TicketID:       out.TicketID,
		MessageID:      out.MessageID,
	})
}
