package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/db"
	"github.com/atiendo/backend/internal/http/middleware"
	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/tracking"
)

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

// @Summary List tickets
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param status query string false "Ticket status"
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Param q query string false "Search title or number"
// @Success 200 {object} map[string]any
// @Router /api/tickets [get]
func (h *Handler) TicketsList(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.Store.ListTickets(c.Request.Context(), middleware.TenantID(c), db.TicketFilter{
		Status:   strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Q:        strings.TrimSpace(c.Query("q")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list tickets", err.Error())
		return
	}
	if items == nil {
		items = []models.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

// loadTicket fetches a ticket owned by the caller's tenant; anything else is a 404.
func (h *Handler) loadTicket(c *gin.Context) (models.Ticket, bool) {
	t, err := h.Store.GetTicket(c.Request.Context(), c.Param("id"))
	if err == nil && t.TenantID != middleware.TenantID(c) {
		err = apperr.NotFound("ticket")
	}
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Ticket not found")
		return models.Ticket{}, false
	}
	return t, true
}

// @Summary Ticket details
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.Ticket
// @Failure 404 {object} ErrorResponse
// @Router /api/tickets/{id} [get]
func (h *Handler) TicketDetails(c *gin.Context) {
	t, ok := h.loadTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t)
}

type TicketPatchRequest struct {
	Status   *string `json:"status" validate:"omitempty,oneof=NEW IN_PROGRESS WAITING_CUSTOMER RESOLVED CLOSED"`
	Priority *string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Summary  *string `json:"summary" validate:"omitempty,max=4000"`
}

// @Summary Update ticket
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param payload body TicketPatchRequest true "Fields to change"
// @Success 200 {object} models.Ticket
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/tickets/{id} [patch]
func (h *Handler) TicketUpdate(c *gin.Context) {
	var req TicketPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return
	}
	t, ok := h.loadTicket(c)
	if !ok {
		return
	}

	var u db.TicketUpdate
	if req.Status != nil {
		s := models.TicketStatus(*req.Status)
		u.Status = &s
	}
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		u.Priority = &p
	}
	u.Summary = req.Summary

	updated, err := h.Store.UpdateTicket(c.Request.Context(), t.ID, u)
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Failed to update ticket")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary List conversations
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param status query string false "Conversation status"
// @Success 200 {object} map[string]any
// @Router /api/conversations [get]
func (h *Handler) ConversationsList(c *gin.Context) {
	limit, offset := pageParams(c)
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	items, err := h.Store.ListConversations(c.Request.Context(), middleware.TenantID(c), status, limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list conversations", err.Error())
		return
	}
	if items == nil {
		items = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) loadConversation(c *gin.Context) (models.Conversation, bool) {
	conv, err := h.Store.GetConversation(c.Request.Context(), c.Param("id"))
	if err == nil && conv.TenantID != middleware.TenantID(c) {
		err = apperr.NotFound("conversation")
	}
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Conversation not found")
		return models.Conversation{}, false
	}
	return conv, true
}

// @Summary Conversation details with messages
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /api/conversations/{id} [get]
func (h *Handler) ConversationDetails(c *gin.Context) {
	conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	customer, err := h.Store.GetCustomer(c.Request.Context(), conv.CustomerID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load customer", err.Error())
		return
	}
	messages, err := h.Store.ListMessages(c.Request.Context(), conv.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load messages", err.Error())
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "customer": customer, "messages": messages})
}

type ConversationPatchRequest struct {
	Status   string `json:"status" validate:"omitempty,oneof=OPEN PENDING RESOLVED CLOSED"`
	Priority string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

// @Summary Update conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param payload body ConversationPatchRequest true "Fields to change"
// @Success 200 {object} models.Conversation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/conversations/{id} [patch]
func (h *Handler) ConversationUpdate(c *gin.Context) {
	var req ConversationPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return
	}
	if req.Status == "" && req.Priority == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Nothing to update", nil)
		return
	}
	conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	err := h.Store.UpdateConversationState(c.Request.Context(), conv.ID, models.ConversationStatus(req.Status), models.Priority(req.Priority))
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Failed to update conversation")
		return
	}
	updated, err := h.Store.GetConversation(c.Request.Context(), conv.ID)
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Failed to load conversation")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary Tenant AI settings
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.TenantSettings
// @Router /api/settings [get]
func (h *Handler) SettingsGet(c *gin.Context) {
	t, err := h.Store.GetTenant(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Tenant not found")
		return
	}
	c.JSON(http.StatusOK, t.Settings)
}

// @Summary Replace tenant AI settings
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.TenantSettings true "Settings"
// @Success 200 {object} models.TenantSettings
// @Failure 400 {object} ErrorResponse
// @Router /api/settings [put]
func (h *Handler) SettingsUpdate(c *gin.Context) {
	var req models.TenantSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(err))
		return
	}
	categories := make([]string, 0, len(req.AutopilotCategories))
	for _, cat := range req.AutopilotCategories {
		if cat = strings.ToUpper(strings.TrimSpace(cat)); cat != "" {
			categories = append(categories, cat)
		}
	}
	req.AutopilotCategories = categories

	t, err := h.Store.UpdateTenantSettings(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		writeAppError(c, err, "DB_ERROR", "Failed to update settings")
		return
	}
	c.JSON(http.StatusOK, t.Settings)
}

// @Summary Inbound event audit log
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, processed or failed"
// @Success 200 {object} map[string]any
// @Router /api/events [get]
func (h *Handler) EventsList(c *gin.Context) {
	limit, offset := pageParams(c)
	if !h.Caps.EventLog {
		c.JSON(http.StatusOK, gin.H{"items": []models.EventLog{}, "limit": limit, "offset": offset, "auditAvailable": false})
		return
	}
	items, err := h.Store.ListEventLogs(c.Request.Context(), middleware.TenantID(c), strings.ToLower(c.Query("status")), limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list events", err.Error())
		return
	}
	if items == nil {
		items = []models.EventLog{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset, "auditAvailable": true})
}

// @Summary Shipment tracking lookup
// @Tags tracking
// @Produce json
// @Security BearerAuth
// @Param number path string true "Tracking number"
// @Success 200 {object} tracking.Status
// @Failure 400 {object} ErrorResponse
// @Router /api/tracking/{number} [get]
func (h *Handler) TrackingLookup(c *gin.Context) {
	status, err := h.Tracker.Lookup(c.Request.Context(), c.Param("number"))
	if errors.Is(err, tracking.ErrInvalidNumber) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid tracking number", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusBadGateway, "TRACKING_ERROR", "Tracking lookup failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}
