package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/models"
)

type IntakeRequest struct {
	TenantID       string
	Source         string
	Type           string
	IdempotencyKey string
	RawPayload     json.RawMessage
}

type IntakeResult struct {
	// Event is nil when the audit table is unavailable.
	Event            *models.EventLog
	AlreadyProcessed bool
}

// Intake records inbound events for dedupe and audit.
type Intake struct {
	Repo   Repository
	Caps   models.Capabilities
	Logger zerolog.Logger
}

func (in *Intake) Begin(ctx context.Context, req IntakeRequest) (IntakeResult, error) {
	if !in.Caps.EventLog {
		in.Logger.Warn().Str("source", req.Source).Msg("audit unavailable, processing without event log")
		return IntakeResult{}, nil
	}
	var tenantID *string
	if req.TenantID != "" {
		tenantID = &req.TenantID
	}
	ev, already, err := in.Repo.ClaimEventLog(ctx, models.EventLog{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		IdempotencyKey: req.IdempotencyKey,
		Source:         req.Source,
		Type:           req.Type,
		RawPayload:     req.RawPayload,
	})
	if err != nil {
		return IntakeResult{}, err
	}
	return IntakeResult{Event: &ev, AlreadyProcessed: already}, nil
}

func (in *Intake) Processed(ctx context.Context, ev *models.EventLog) {
	if ev == nil {
		return
	}
	if err := in.Repo.MarkEventProcessed(ctx, ev.ID); err != nil {
		in.Logger.Error().Err(err).Str("event_id", ev.ID).Msg("could not mark event processed")
	}
}

func (in *Intake) Failed(ctx context.Context, ev *models.EventLog, cause error) {
	if ev == nil {
		return
	}
	if err := in.Repo.MarkEventFailed(ctx, ev.ID, cause.Error()); err != nil {
		in.Logger.Error().Err(err).Str("event_id", ev.ID).Msg("could not mark event failed")
	}
}
