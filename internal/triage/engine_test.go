package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/ai"
	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/models"
)

type fakeReader struct {
	tenant   models.Tenant
	convs    map[string]models.Conversation
	messages []models.Message
}

func (f *fakeReader) GetTenant(ctx context.Context, id string) (models.Tenant, error) {
	if id != f.tenant.ID {
		return models.Tenant{}, apperr.NotFound("tenant")
	}
	return f.tenant, nil
}

func (f *fakeReader) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	c, ok := f.convs[id]
	if !ok {
		return models.Conversation{}, apperr.NotFound("conversation")
	}
	return c, nil
}

func (f *fakeReader) GetMessage(ctx context.Context, id string) (models.Message, error) {
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return models.Message{}, apperr.NotFound("message")
}

func (f *fakeReader) LatestMessage(ctx context.Context, conversationID string) (models.Message, error) {
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].ConversationID == conversationID {
			return f.messages[i], nil
		}
	}
	return models.Message{}, apperr.NotFound("message")
}

func strPtr(s string) *string { return &s }

func newFakeReader(settings models.TenantSettings) *fakeReader {
	return &fakeReader{
		tenant: models.Tenant{ID: "t1", Settings: settings},
		convs: map[string]models.Conversation{
			"c1": {ID: "c1", TenantID: "t1", CustomerID: "cust1"},
			"c2": {ID: "c2", TenantID: "t1", CustomerID: "cust1"},
		},
		messages: []models.Message{
			{ID: "m1", ConversationID: "c1", Text: strPtr("quiero info")},
			{ID: "m2", ConversationID: "c1", Text: strPtr("seguimiento ABC123456")},
		},
	}
}

func TestEngineTriageNotFound(t *testing.T) {
	e := &Engine{Store: newFakeReader(models.DefaultTenantSettings()), Logger: zerolog.Nop()}
	_, err := e.Triage(context.Background(), Request{ConversationID: "missing"})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEngineTriageTenantMismatchIsNotFound(t *testing.T) {
	e := &Engine{Store: newFakeReader(models.DefaultTenantSettings()), Logger: zerolog.Nop()}
	_, err := e.Triage(context.Background(), Request{TenantID: "other", ConversationID: "c1"})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}
}

func TestEngineTriageNoMessages(t *testing.T) {
	e := &Engine{Store: newFakeReader(models.DefaultTenantSettings()), Logger: zerolog.Nop()}
	res, err := e.Triage(context.Background(), Request{ConversationID: "c2"})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if res.Intent != IntentOtro || res.Confidence != 0.3 || res.AutopilotEligible {
		t.Fatalf("unexpected empty result %+v", res)
	}
}

func TestEngineTriageUsesLastMessageAndSettings(t *testing.T) {
	e := &Engine{Store: newFakeReader(models.DefaultTenantSettings()), Logger: zerolog.Nop()}

	res, err := e.Triage(context.Background(), Request{ConversationID: "c1", LastMessageID: "m1"})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if res.Intent != IntentInfo {
		t.Fatalf("expected info from m1, got %s", res.Intent)
	}
	if res.AutopilotEligible {
		t.Fatalf("info at 0.6 is below the default 0.7 threshold")
	}

	res, err = e.Triage(context.Background(), Request{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if res.Intent != IntentTracking || !res.AutopilotEligible {
		t.Fatalf("expected eligible tracking from latest message, got %+v", res)
	}
}

func TestEngineTriageSwallowsLLMFailure(t *testing.T) {
	llm := &ai.MockAssistant{Err: errors.New("upstream down")}
	e := &Engine{Store: newFakeReader(models.DefaultTenantSettings()), LLM: llm, Logger: zerolog.Nop()}
	res, err := e.Triage(context.Background(), Request{ConversationID: "c1", LastMessageID: "m2"})
	if err != nil {
		t.Fatalf("llm failure must not propagate: %v", err)
	}
	if res.Intent != IntentTracking {
		t.Fatalf("expected rule result, got %s", res.Intent)
	}
	if llm.Calls() != 1 {
		t.Fatalf("expected one llm call, got %d", llm.Calls())
	}
}

func TestEngineTriageIgnoresLLMAnswer(t *testing.T) {
	e := &Engine{Store: newFakeReader(models.DefaultTenantSettings()), LLM: &ai.MockAssistant{}, Logger: zerolog.Nop()}
	res, err := e.Triage(context.Background(), Request{ConversationID: "c1", LastMessageID: "m1"})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if res.Intent != IntentInfo || res.Confidence != 0.6 {
		t.Fatalf("llm answer must not alter the result, got %+v", res)
	}
}
