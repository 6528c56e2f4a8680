package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/events"
	"github.com/atiendo/backend/internal/lock"
	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/triage"
)

const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
)

// ErrInFlight means another delivery of the same event is being processed.
var ErrInFlight = errors.New("event is already being processed")

type Triager interface {
	Triage(ctx context.Context, req triage.Request) (models.TriageResult, error)
}

// InboundEvent is a validated webhook delivery reduced to what the pipeline needs.
type InboundEvent struct {
	Source         models.Channel
	Type           string
	AccountKey     string
	TenantID       string
	Phone          string
	Name           string
	Text           *string
	Metadata       map[string]any
	RawPayload     json.RawMessage
	IdempotencyKey string
}

type Outcome struct {
	Status         string               `json:"status"`
	EventID        string               `json:"eventId,omitempty"`
	ConversationID string               `json:"conversationId,omitempty"`
	TicketID       string               `json:"ticketId,omitempty"`
	MessageID      string               `json:"messageId,omitempty"`
	Triage         *models.TriageResult `json:"-"`
	Autopilot      AutopilotOutcome     `json:"-"`
}

type Pipeline struct {
	Repo      Repository
	Tenants   *TenantResolver
	Intake    *Intake
	Triage    Triager
	Projector *Projector
	Autopilot *Autopilot
	Locker    lock.Locker
	ClaimTTL  time.Duration
	Events    events.Publisher
	Logger    zerolog.Logger
}

// Process runs one inbound event through
// tenant -> dedupe -> customer -> conversation -> message -> triage -> ticket -> autopilot.
func (p *Pipeline) Process(ctx context.Context, in InboundEvent) (Outcome, error) {
	log := p.Logger.With().Str("source", string(in.Source)).Str("idempotency_key", in.IdempotencyKey).Logger()
	log.Debug().Str("stage", "RECEIVED").Msg("pipeline")

	tenantID, err := p.Tenants.ResolveOrProvision(ctx, TenantQuery{AccountKey: in.AccountKey, TenantID: in.TenantID})
	if err != nil {
		log.Error().Err(err).Msg("tenant resolution failed")
		return Outcome{}, apperr.Fatal("TENANT_ERROR", fmt.Errorf("resolve tenant: %w", err))
	}
	log = log.With().Str("tenant_id", tenantID).Logger()
	log.Debug().Str("stage", "TENANT_RESOLVED").Msg("pipeline")

	if p.Locker != nil {
		release, ok, err := p.Locker.Claim(ctx, in.IdempotencyKey, p.ClaimTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("claim lock unavailable, continuing without it")
		case !ok:
			return Outcome{}, ErrInFlight
		default:
			defer release()
		}
	}

	intake, err := p.Intake.Begin(ctx, IntakeRequest{
		TenantID:       tenantID,
		Source:         string(in.Source),
		Type:           in.Type,
		IdempotencyKey: in.IdempotencyKey,
		RawPayload:     in.RawPayload,
	})
	if err != nil {
		log.Error().Err(err).Msg("event intake failed")
		return Outcome{}, apperr.Fatal("PROCESSING_ERROR", fmt.Errorf("event intake: %w", err))
	}
	if intake.AlreadyProcessed {
		log.Info().Str("event_id", intake.Event.ID).Msg("event already processed")
		return Outcome{Status: StatusAlreadyProcessed, EventID: intake.Event.ID}, nil
	}
	log.Debug().Str("stage", "DEDUPE_CHECKED").Msg("pipeline")

	out, err := p.run(ctx, log, tenantID, in)
	if err != nil {
		p.Intake.Failed(ctx, intake.Event, err)
		log.Error().Err(err).Str("message_id", out.MessageID).Msg("event failed")
		return out, apperr.Fatal("PROCESSING_ERROR", err)
	}
	p.Intake.Processed(ctx, intake.Event)
	if intake.Event != nil {
		out.EventID = intake.Event.ID
	}
	log.Info().
		Str("conversation_id", out.ConversationID).
		Str("ticket_id", out.TicketID).
		Str("message_id", out.MessageID).
		Str("autopilot", string(out.Autopilot)).
		Msg("event processed")

	p.publish(ctx, log, tenantID, in, out)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, tenantID string, in InboundEvent) (Outcome, error) {
	out := Outcome{Status: StatusProcessed}

	name := in.Name
	if name == "" {
		name = "Cliente " + in.Phone
	}
	customer, _, err := p.Repo.EnsureCustomer(ctx, tenantID, in.Phone, name)
	if err != nil {
		return out, fmt.Errorf("ensure customer: %w", err)
	}
	log.Debug().Str("stage", "CUSTOMER_RESOLVED").Str("customer_id", customer.ID).Msg("pipeline")

	conv, _, err := p.Repo.EnsureOpenConversation(ctx, tenantID, customer.ID, in.Source)
	if err != nil {
		return out, fmt.Errorf("ensure conversation: %w", err)
	}
	out.ConversationID = conv.ID
	log.Debug().Str("stage", "CONVERSATION_RESOLVED").Str("conversation_id", conv.ID).Msg("pipeline")

	msg, err := p.Repo.InsertMessage(ctx, models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Channel:        in.Source,
		Direction:      models.DirectionInbound,
		Text:           in.Text,
		RawPayload:     in.RawPayload,
		Metadata:       in.Metadata,
	})
	if err != nil {
		return out, fmt.Errorf("store message: %w", err)
	}
	out.MessageID = msg.ID
	log.Debug().Str("stage", "MESSAGE_STORED").Str("message_id", msg.ID).Msg("pipeline")

	res, err := p.Triage.Triage(ctx, triage.Request{
		TenantID:       tenantID,
		ConversationID: conv.ID,
		LastMessageID:  msg.ID,
		Channel:        in.Source,
	})
	if err != nil {
		return out, fmt.Errorf("triage: %w", err)
	}
	out.Triage = &res
	log.Debug().Str("stage", "TRIAGED").Str("intent", res.Intent).Float64("confidence", res.Confidence).Msg("pipeline")

	ticket, err := p.Projector.Project(ctx, conv, msg, res)
	if ticket.ID != "" {
		out.TicketID = ticket.ID
	}
	if err != nil {
		return out, err
	}
	log.Debug().Str("stage", "TICKET_PROJECTED").Str("ticket_id", ticket.ID).Msg("pipeline")

	tenant, err := p.Repo.GetTenant(ctx, tenantID)
	if err != nil {
		return out, fmt.Errorf("load tenant settings: %w", err)
	}
	out.Autopilot = p.Autopilot.Respond(ctx, tenant.Settings, conv, customer, res)
	stage := "AUTOPILOT_SKIPPED"
	if out.Autopilot == AutopilotSent || out.Autopilot == AutopilotQueued {
		stage = "AUTOPILOT_SENT"
	}
	log.Debug().Str("stage", stage).Str("autopilot", string(out.Autopilot)).Msg("pipeline")
	return out, nil
}

func (p *Pipeline) publish(ctx context.Context, log zerolog.Logger, tenantID string, in InboundEvent, out Outcome) {
	if p.Events == nil {
		return
	}
	ev := events.MessageProcessed{
		Type:           events.TypeMessageProcessed,
		TenantID:       tenantID,
		ConversationID: out.ConversationID,
		TicketID:       out.TicketID,
		MessageID:      out.MessageID,
		Source:         string(in.Source),
		AutopilotSent:  out.Autopilot == AutopilotSent,
		OccurredAt:     time.Now().UTC(),
	}
	if out.Triage != nil {
		ev.Intent = out.Triage.Intent
		ev.Confidence = out.Triage.Confidence
	}
	if err := p.Events.Publish(ctx, events.TypeMessageProcessed, ev); err != nil {
		log.Warn().Err(err).Msg("event publish failed")
	}
}
