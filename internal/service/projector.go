package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/utils"
)

// Projector turns a triage result into ticket, message and conversation state.
type Projector struct {
	Repo   Repository
	Logger zerolog.Logger
	Now    func() time.Time
}

func TicketPriority(category string) models.Priority {
	if category == models.CategoryReclamo {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

// ConversationPriority is derived from the latest triage only.
func ConversationPriority(res models.TriageResult) models.Priority {
	category := res.Category()
	switch {
	case category == models.CategoryReclamo || res.Confidence > 0.9:
		return models.PriorityHigh
	case category == models.CategoryTracking || category == models.CategoryInfo:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

func TriageMetadata(res models.TriageResult) map[string]any {
	return map[string]any{
		"triage": map[string]any{
			"intent":            res.Intent,
			"confidence":        res.Confidence,
			"missingFields":     res.MissingFields,
			"suggestedReply":    res.SuggestedReply,
			"suggestedActions":  res.SuggestedActions,
			"autopilotEligible": res.AutopilotEligible,
		},
	}
}

func (p *Projector) Project(ctx context.Context, conv models.Conversation, msg models.Message, res models.TriageResult) (models.Ticket, error) {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	category := res.Category()
	ticket, created, err := p.Repo.EnsureOpenTicket(ctx, models.Ticket{
		ID:             uuid.NewString(),
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Number:         utils.TicketNumber(now, nil),
		Status:         models.TicketNew,
		Category:       category,
		Priority:       TicketPriority(category),
		Title:          "Consulta " + category,
	})
	if err != nil {
		return models.Ticket{}, fmt.Errorf("ensure ticket: %w", err)
	}
	if created {
		p.Logger.Info().Str("ticket_id", ticket.ID).Str("number", ticket.Number).Str("category", ticket.Category).Msg("ticket created")
	}

	if err := p.Repo.MergeMessageMetadata(ctx, msg.ID, TriageMetadata(res)); err != nil {
		return ticket, fmt.Errorf("attach triage metadata: %w", err)
	}
	if err := p.Repo.UpdateConversationState(ctx, conv.ID, "", ConversationPriority(res)); err != nil {
		return ticket, fmt.Errorf("update conversation priority: %w", err)
	}
	return ticket, nil
}
