package triage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/ai"
	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/models"
)

const systemPrompt = `Eres un clasificador de mensajes de atención al cliente. Responde solo con JSON {"intent": "tracking|facturacion|reclamo|cotizacion|info|otro", "confidence": 0-1}.`

// Reader is the part of the store the engine reads from.
type Reader interface {
	GetTenant(ctx context.Context, id string) (models.Tenant, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	LatestMessage(ctx context.Context, conversationID string) (models.Message, error)
}

type Request struct {
	// TenantID, when set, must own the conversation.
	TenantID       string
	ConversationID string
	LastMessageID  string
	Channel        models.Channel
}

type Engine struct {
	Store      Reader
	LLM        ai.Assistant
	LLMTimeout time.Duration
	Logger     zerolog.Logger
}

func (e *Engine) Triage(ctx context.Context, req Request) (models.TriageResult, error) {
	conv, err := e.Store.GetConversation(ctx, req.ConversationID)
	if apperr.IsNotFound(err) {
		return models.TriageResult{}, apperr.NotFound("conversation")
	}
	if err != nil {
		return models.TriageResult{}, err
	}
	if req.TenantID != "" && conv.TenantID != req.TenantID {
		return models.TriageResult{}, apperr.NotFound("conversation")
	}

	msg, ok, err := e.pickMessage(ctx, conv.ID, req.LastMessageID)
	if err != nil {
		return models.TriageResult{}, err
	}
	if !ok || msg.TextValue() == "" {
		return Empty(), nil
	}

	tenant, err := e.Store.GetTenant(ctx, conv.TenantID)
	if err != nil {
		return models.TriageResult{}, err
	}

	res := Classify(msg.TextValue(), conv.CustomerID)
	res.AutopilotEligible = Eligible(res, tenant.Settings)
	e.refine(ctx, msg.TextValue())
	e.Logger.Debug().
		Str("conversation_id", conv.ID).
		Str("channel", string(req.Channel)).
		Str("intent", res.Intent).
		Float64("confidence", res.Confidence).
		Bool("autopilot_eligible", res.AutopilotEligible).
		Msg("triaged")
	return res, nil
}

func (e *Engine) pickMessage(ctx context.Context, conversationID, lastMessageID string) (models.Message, bool, error) {
	if lastMessageID != "" {
		m, err := e.Store.GetMessage(ctx, lastMessageID)
		if err == nil && m.ConversationID == conversationID {
			return m, true, nil
		}
		if err != nil && !apperr.IsNotFound(err) {
			return models.Message{}, false, err
		}
	}
	m, err := e.Store.LatestMessage(ctx, conversationID)
	if apperr.IsNotFound(err) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return m, true, nil
}

// refine asks the model for a second opinion. The answer is logged only and
// never changes the rule-based result.
func (e *Engine) refine(ctx context.Context, text string) {
	if e.LLM == nil {
		return
	}
	timeout := e.LLMTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer, err := e.LLM.Ask(ctx, text, []ai.ChatMessage{{Role: "system", Content: systemPrompt}})
	if err != nil {
		e.Logger.Warn().Err(err).Msg("llm refinement failed")
		return
	}
	e.Logger.Debug().Str("llm_answer", answer).Msg("llm refinement")
}
