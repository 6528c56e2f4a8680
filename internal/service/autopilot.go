package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/channel"
	"github.com/atiendo/backend/internal/models"
)

const JobCallFollowup = "call_followup"

type AutopilotOutcome string

const (
	AutopilotSkipped AutopilotOutcome = "skipped"
	AutopilotSent    AutopilotOutcome = "sent"
	AutopilotQueued  AutopilotOutcome = "queued"
	AutopilotFailed  AutopilotOutcome = "failed"
)

type Autopilot struct {
	Repo   Repository
	Sender channel.Sender
	Caps   models.Capabilities
	Logger zerolog.Logger
}

type callFollowupPayload struct {
	ConversationID string `json:"conversationId"`
	Phone          string `json:"phone"`
	Text           string `json:"text"`
}

// Respond sends the suggested reply when the tenant runs in autopilot and the
// result qualifies. Send failures are logged and never undo earlier writes.
func (a *Autopilot) Respond(ctx context.Context, settings models.TenantSettings, conv models.Conversation, customer models.Customer, res models.TriageResult) AutopilotOutcome {
	if settings.AIMode != models.AIModeAutopilot || !res.AutopilotEligible || res.SuggestedReply == "" {
		return AutopilotSkipped
	}

	if conv.PrimaryChannel == models.ChannelVoiceCalls {
		if !settings.AutopilotCallFollowup {
			return AutopilotSkipped
		}
		if a.Caps.Jobs {
			return a.enqueueFollowup(ctx, conv, customer, res.SuggestedReply)
		}
	}

	if err := deliver(ctx, a.Repo, a.Sender, conv.ID, customer.PhoneNumber, res.SuggestedReply); err != nil {
		a.Logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("autopilot send failed")
		return AutopilotFailed
	}
	return AutopilotSent
}

func (a *Autopilot) enqueueFollowup(ctx context.Context, conv models.Conversation, customer models.Customer, text string) AutopilotOutcome {
	payload, err := json.Marshal(callFollowupPayload{ConversationID: conv.ID, Phone: customer.PhoneNumber, Text: text})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("autopilot follow-up payload")
		return AutopilotFailed
	}
	job, err := a.Repo.EnqueueJob(ctx, models.Job{
		ID:       uuid.NewString(),
		TenantID: conv.TenantID,
		JobType:  JobCallFollowup,
		Payload:  payload,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("autopilot follow-up enqueue failed")
		return AutopilotFailed
	}
	a.Logger.Info().Str("job_id", job.ID).Str("conversation_id", conv.ID).Msg("call follow-up queued")
	return AutopilotQueued
}

// deliver sends text and on success records the OUTBOUND message and parks
// the conversation as PENDING.
func deliver(ctx context.Context, repo Repository, sender channel.Sender, conversationID, phone, text string) error {
	result := sender.SendText(ctx, phone, text, channel.SendOptions{ConversationID: conversationID})
	if !result.Success {
		return fmt.Errorf("channel send: %s", result.Error)
	}
	metadata := map[string]any{"autopilot": true}
	if result.MessageID != "" {
		metadata["providerMessageId"] = result.MessageID
	}
	if _, err := repo.InsertMessage(ctx, models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Channel:        models.ChannelWhatsAppBot,
		Direction:      models.DirectionOutbound,
		Text:           &text,
		Metadata:       metadata,
	}); err != nil {
		return fmt.Errorf("store outbound message: %w", err)
	}
	if err := repo.UpdateConversationState(ctx, conversationID, models.ConversationPending, ""); err != nil {
		return fmt.Errorf("mark conversation pending: %w", err)
	}
	return nil
}

// CallFollowupHandler runs call_followup jobs.
type CallFollowupHandler struct {
	Repo   Repository
	Sender channel.Sender
	Logger zerolog.Logger
}

func (h *CallFollowupHandler) Handle(ctx context.Context, job models.Job) error {
	var p callFollowupPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ConversationID == "" || p.Phone == "" || p.Text == "" {
		return fmt.Errorf("incomplete follow-up payload")
	}
	conv, err := h.Repo.GetConversation(ctx, p.ConversationID)
	if err != nil {
		return err
	}
	if conv.TenantID != job.TenantID {
		return fmt.Errorf("conversation %s does not belong to tenant %s", conv.ID, job.TenantID)
	}
	if err := deliver(ctx, h.Repo, h.Sender, conv.ID, p.Phone, p.Text); err != nil {
		return err
	}
	h.Logger.Info().Str("job_id", job.ID).Str("conversation_id", conv.ID).Msg("call follow-up sent")
	return nil
}
