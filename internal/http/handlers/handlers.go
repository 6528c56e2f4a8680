package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/db"
	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/service"
	"github.com/atiendo/backend/internal/tracking"
	"github.com/atiendo/backend/internal/triage"
)

// Store is what the dashboard reads and writes directly.
type Store interface {
	Ping(ctx context.Context) error
	GetTenant(ctx context.Context, id string) (models.Tenant, error)
	UpdateTenantSettings(ctx context.Context, id string, settings models.TenantSettings) (models.Tenant, error)
	GetCustomer(ctx context.Context, id string) (models.Customer, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	ListConversations(ctx context.Context, tenantID, status string, limit, offset int) ([]models.Conversation, error)
	UpdateConversationState(ctx context.Context, id string, status models.ConversationStatus, priority models.Priority) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	ListTickets(ctx context.Context, tenantID string, f db.TicketFilter) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, id string, u db.TicketUpdate) (models.Ticket, error)
	ListEventLogs(ctx context.Context, tenantID, status string, limit, offset int) ([]models.EventLog, error)
}

type Processor interface {
	Process(ctx context.Context, in service.InboundEvent) (service.Outcome, error)
}

type Triager interface {
	Triage(ctx context.Context, req triage.Request) (models.TriageResult, error)
}

type Handler struct {
	Store             Store
	Pipeline          Processor
	Triage            Triager
	Tracker           tracking.Tracker
	Validator         *validator.Validate
	Logger            zerolog.Logger
	Caps              models.Capabilities
	JWTSecret         string
	DefaultAccountKey string
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} ErrorResponse
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "capabilities": h.Caps})
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details"`
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeAppError maps err onto the error envelope. fallbackCode is used for
// errors that carry no code of their own.
func writeAppError(c *gin.Context, err error, fallbackCode, message string) {
	status := apperr.StatusOf(err)
	code := fallbackCode
	var details any
	var e *apperr.Error
	if errors.As(err, &e) {
		if e.Code != "" {
			code = e.Code
		}
		details = e.Details
	}
	if status == http.StatusNotFound {
		code = "NOT_FOUND"
	}
	if details == nil && err != nil {
		details = err.Error()
	}
	writeError(c, status, code, message, details)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, gin.H{"field": fe.Namespace(), "rule": fe.Tag(), "param": fe.Param()})
	}
	return out
}
