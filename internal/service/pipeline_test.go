package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/lock"
	"github.com/atiendo/backend/internal/models"
	"github.com/atiendo/backend/internal/triage"
	"github.com/atiendo/backend/internal/utils"
)

type harness struct {
	repo     *memRepo
	sender   *fakeSender
	locker   *lock.MemoryLocker
	pipeline *Pipeline
}

func newHarness(caps models.Capabilities) *harness {
	repo := newMemRepo()
	sender := &fakeSender{}
	locker := lock.NewMemoryLocker()
	logger := zerolog.Nop()
	p := &Pipeline{
		Repo:      repo,
		Tenants:   &TenantResolver{Repo: repo, Logger: logger},
		Intake:    &Intake{Repo: repo, Caps: caps, Logger: logger},
		Triage:    &triage.Engine{Store: repo, Logger: logger},
		Projector: &Projector{Repo: repo, Logger: logger},
		Autopilot: &Autopilot{Repo: repo, Sender: sender, Caps: caps, Logger: logger},
		Locker:    locker,
		ClaimTTL:  time.Minute,
		Logger:    logger,
	}
	return &harness{repo: repo, sender: sender, locker: locker, pipeline: p}
}

func fullCaps() models.Capabilities {
	return models.Capabilities{EventLog: true, Jobs: true}
}

func botEvent(t *testing.T, phone, text string) InboundEvent {
	t.Helper()
	payload := map[string]any{"event": "message.received", "data": map[string]any{"from": phone, "body": text}}
	key, err := utils.IdempotencyKey(string(models.ChannelWhatsAppBot), payload)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return InboundEvent{
		Source:         models.ChannelWhatsAppBot,
		Type:           "message.received",
		AccountKey:     "default",
		Phone:          phone,
		Text:           &text,
		IdempotencyKey: key,
	}
}

func (h *harness) seedTenant(settings models.TenantSettings) string {
	t, _ := h.repo.CreateTenant(context.Background(), models.Tenant{ID: "tenant-1", Slug: "acme", Name: "Acme", Settings: settings})
	return t.ID
}

func TestProcessTrackingScenario(t *testing.T) {
	h := newHarness(fullCaps())
	out, err := h.pipeline.Process(context.Background(), botEvent(t, "+5491112345678", "necesito el seguimiento de mi pedido ABC123456"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Status != StatusProcessed || out.ConversationID == "" || out.TicketID == "" || out.MessageID == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.repo.tenants) != 1 || h.repo.tenants[0].Settings.AIMode != models.AIModeAssisted {
		t.Fatalf("expected a provisioned default tenant, got %+v", h.repo.tenants)
	}
	if len(h.repo.customers) != 1 || h.repo.customers[0].PhoneNumber != "+5491112345678" {
		t.Fatalf("unexpected customers %+v", h.repo.customers)
	}
	if h.repo.customers[0].Name != "Cliente +5491112345678" {
		t.Fatalf("expected synthesized name, got %q", h.repo.customers[0].Name)
	}

	inbound := h.repo.messagesIn(out.ConversationID, models.DirectionInbound)
	if len(inbound) != 1 {
		t.Fatalf("expected one inbound message, got %d", len(inbound))
	}
	meta, ok := inbound[0].Metadata["triage"].(map[string]any)
	if !ok {
		t.Fatalf("expected triage metadata, got %+v", inbound[0].Metadata)
	}
	if meta["intent"] != "tracking" || meta["confidence"] != 0.8 {
		t.Fatalf("unexpected triage metadata %+v", meta)
	}
	actions := out.Triage.SuggestedActions
	if len(actions) != 1 || actions[0].Type != "lookup_tracking" || actions[0].Payload["trackingNumber"] != "ABC123456" {
		t.Fatalf("unexpected actions %+v", actions)
	}

	if len(h.repo.tickets) != 1 || h.repo.tickets[0].Category != models.CategoryTracking || h.repo.tickets[0].Priority != models.PriorityMedium {
		t.Fatalf("unexpected tickets %+v", h.repo.tickets)
	}
	if h.repo.tickets[0].Title != "Consulta TRACKING" || h.repo.tickets[0].Status != models.TicketNew {
		t.Fatalf("unexpected ticket fields %+v", h.repo.tickets[0])
	}
	if got := h.repo.conversation(out.ConversationID).Priority; got != models.PriorityLow {
		t.Fatalf("expected LOW conversation priority, got %s", got)
	}
	if h.sender.count() != 0 {
		t.Fatalf("assisted tenant must not auto-reply")
	}
	if len(h.repo.accounts) != 1 || h.repo.accounts[0].AccountKey != "default" {
		t.Fatalf("expected default channel account, got %+v", h.repo.accounts)
	}
	for _, e := range h.repo.events {
		if e.Status != models.EventProcessed {
			t.Fatalf("expected processed event, got %s", e.Status)
		}
	}
}

func TestProcessRedeliveryIsAlreadyProcessed(t *testing.T) {
	h := newHarness(fullCaps())
	ev := botEvent(t, "+5491100000000", "hola, quiero info")
	first, err := h.pipeline.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	messages := len(h.repo.messages)
	tickets := len(h.repo.tickets)

	second, err := h.pipeline.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Status != StatusAlreadyProcessed || second.EventID != first.EventID {
		t.Fatalf("expected already_processed for %s, got %+v", first.EventID, second)
	}
	if len(h.repo.messages) != messages || len(h.repo.tickets) != tickets {
		t.Fatalf("redelivery must not write")
	}
}

func TestProcessInFlightDuplicate(t *testing.T) {
	h := newHarness(fullCaps())
	ev := botEvent(t, "+549110", "info")
	release, ok, _ := h.locker.Claim(context.Background(), ev.IdempotencyKey, time.Minute)
	if !ok {
		t.Fatalf("expected to claim")
	}
	defer release()

	_, err := h.pipeline.Process(context.Background(), ev)
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	if len(h.repo.messages) != 0 {
		t.Fatalf("in-flight duplicate must not write")
	}
}

func TestProcessReclamoScenario(t *testing.T) {
	h := newHarness(fullCaps())
	out, err := h.pipeline.Process(context.Background(), botEvent(t, "+549111", "el producto llegó dañado, quiero reembolso"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Triage.Intent != "reclamo" || out.Triage.Confidence != 0.9 {
		t.Fatalf("unexpected triage %+v", out.Triage)
	}
	if len(out.Triage.MissingFields) != 2 || out.Triage.AutopilotEligible {
		t.Fatalf("reclamo must carry missing fields and not be eligible")
	}
	tk := h.repo.tickets[0]
	if tk.Priority != models.PriorityHigh || tk.Category != models.CategoryReclamo {
		t.Fatalf("expected HIGH RECLAMO ticket, got %+v", tk)
	}
	if got := h.repo.conversation(out.ConversationID).Priority; got != models.PriorityHigh {
		t.Fatalf("expected HIGH conversation priority, got %s", got)
	}
}

func TestProcessAutopilotScenario(t *testing.T) {
	h := newHarness(fullCaps())
	h.seedTenant(models.TenantSettings{AIMode: models.AIModeAutopilot, AutopilotCategories: []string{"TRACKING"}, ConfidenceThreshold: 0.7})

	out, err := h.pipeline.Process(context.Background(), botEvent(t, "+549112", "seguimiento de mi pedido ABC123456"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Autopilot != AutopilotSent {
		t.Fatalf("expected autopilot sent, got %s", out.Autopilot)
	}
	outbound := h.repo.messagesIn(out.ConversationID, models.DirectionOutbound)
	if len(outbound) != 1 || outbound[0].TextValue() != out.Triage.SuggestedReply {
		t.Fatalf("expected outbound autopilot message, got %+v", outbound)
	}
	if got := h.repo.conversation(out.ConversationID).Status; got != models.ConversationPending {
		t.Fatalf("expected PENDING conversation, got %s", got)
	}
	if h.sender.sent[0].phone != "+549112" {
		t.Fatalf("reply went to %s", h.sender.sent[0].phone)
	}
}

func TestProcessAutopilotRequiresAutopilotMode(t *testing.T) {
	h := newHarness(fullCaps())
	h.seedTenant(models.TenantSettings{AIMode: models.AIModeAssisted, AutopilotCategories: []string{"TRACKING"}, ConfidenceThreshold: 0.7})

	out, err := h.pipeline.Process(context.Background(), botEvent(t, "+549113", "seguimiento ABC123456"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !out.Triage.AutopilotEligible {
		t.Fatalf("expected eligible result")
	}
	if out.Autopilot != AutopilotSkipped || h.sender.count() != 0 {
		t.Fatalf("autopilot must not fire in ASSISTED mode")
	}
}

func TestProcessAutopilotSendFailureKeepsWrites(t *testing.T) {
	h := newHarness(fullCaps())
	h.sender.fail = true
	h.seedTenant(models.TenantSettings{AIMode: models.AIModeAutopilot, AutopilotCategories: []string{"TRACKING"}, ConfidenceThreshold: 0.7})

	out, err := h.pipeline.Process(context.Background(), botEvent(t, "+549114", "seguimiento ABC123456"))
	if err != nil {
		t.Fatalf("send failure must not fail the event: %v", err)
	}
	if out.Autopilot != AutopilotFailed {
		t.Fatalf("expected failed autopilot, got %s", out.Autopilot)
	}
	if len(h.repo.messagesIn(out.ConversationID, models.DirectionOutbound)) != 0 {
		t.Fatalf("no outbound message on failed send")
	}
	if len(h.repo.tickets) != 1 || len(h.repo.messagesIn(out.ConversationID, models.DirectionInbound)) != 1 {
		t.Fatalf("inbound message and ticket must remain")
	}
	if got := h.repo.conversation(out.ConversationID).Status; got != models.ConversationOpen {
		t.Fatalf("expected OPEN conversation, got %s", got)
	}
}

func TestProcessConversationReuse(t *testing.T) {
	h := newHarness(fullCaps())
	first, err := h.pipeline.Process(context.Background(), botEvent(t, "+549115", "hola"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := h.pipeline.Process(context.Background(), botEvent(t, "+549115", "quiero info"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Fatalf("expected same conversation, got %s and %s", first.ConversationID, second.ConversationID)
	}
	if first.TicketID != second.TicketID {
		t.Fatalf("expected open ticket to be reused")
	}

	if err := h.repo.UpdateConversationState(context.Background(), first.ConversationID, models.ConversationClosed, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	third, err := h.pipeline.Process(context.Background(), botEvent(t, "+549115", "otra consulta"))
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third.ConversationID == first.ConversationID {
		t.Fatalf("closed conversation must not be reused")
	}
	if len(h.repo.customers) != 1 {
		t.Fatalf("expected one customer, got %d", len(h.repo.customers))
	}
}

func TestProcessFailureAfterMessageStored(t *testing.T) {
	h := newHarness(fullCaps())
	h.repo.failEnsureTicket = errors.New("db down")

	out, err := h.pipeline.Process(context.Background(), botEvent(t, "+549116", "precio del servicio"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if apperr.StatusOf(err) != 500 {
		t.Fatalf("expected 500, got %d", apperr.StatusOf(err))
	}
	if out.MessageID == "" || len(h.repo.messages) != 1 {
		t.Fatalf("message must stay persisted")
	}
	for _, e := range h.repo.events {
		if e.Status != models.EventFailed || e.Error == nil {
			t.Fatalf("expected failed event with error, got %+v", e)
		}
	}

	h.repo.failEnsureTicket = nil
	retry, err := h.pipeline.Process(context.Background(), botEvent(t, "+549116", "precio del servicio"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Status != StatusProcessed {
		t.Fatalf("expected failed event to be reprocessed, got %s", retry.Status)
	}
	for _, e := range h.repo.events {
		if e.RetryCount != 1 {
			t.Fatalf("expected retry count 1, got %d", e.RetryCount)
		}
	}
}

func TestProcessWithoutEventLogTable(t *testing.T) {
	h := newHarness(models.Capabilities{})
	ev := botEvent(t, "+549117", "info")
	for i := 0; i < 2; i++ {
		out, err := h.pipeline.Process(context.Background(), ev)
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
		if out.Status != StatusProcessed || out.EventID != "" {
			t.Fatalf("unexpected outcome %+v", out)
		}
	}
	if len(h.repo.events) != 0 {
		t.Fatalf("no audit rows without the table")
	}
}

func TestProcessVoiceFollowupQueued(t *testing.T) {
	h := newHarness(fullCaps())
	h.seedTenant(models.TenantSettings{AIMode: models.AIModeAutopilot, AutopilotCategories: []string{"INFO"}, ConfidenceThreshold: 0.5, AutopilotCallFollowup: true})

	text := "llamó para pedir información del plan"
	ev := InboundEvent{Source: models.ChannelVoiceCalls, Type: "call.completed", AccountKey: "voice-main", Phone: "+549118", Text: &text, IdempotencyKey: "voice-1"}
	out, err := h.pipeline.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Autopilot != AutopilotQueued || len(h.repo.jobs) != 1 {
		t.Fatalf("expected queued follow-up, got %s with %d jobs", out.Autopilot, len(h.repo.jobs))
	}
	if h.sender.count() != 0 {
		t.Fatalf("follow-up must not be sent inline")
	}
	if h.repo.accounts[0].Channel != models.ChannelVoiceCalls {
		t.Fatalf("expected voice channel account, got %s", h.repo.accounts[0].Channel)
	}

	handler := &CallFollowupHandler{Repo: h.repo, Sender: h.sender, Logger: zerolog.Nop()}
	if err := handler.Handle(context.Background(), h.repo.jobs[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.repo.messagesIn(out.ConversationID, models.DirectionOutbound)) != 1 {
		t.Fatalf("expected outbound follow-up message")
	}
	if got := h.repo.conversation(out.ConversationID).Status; got != models.ConversationPending {
		t.Fatalf("expected PENDING, got %s", got)
	}

	h.sender.fail = true
	if err := handler.Handle(context.Background(), h.repo.jobs[0]); err == nil {
		t.Fatalf("failed send must fail the job so it retries")
	}
}

func TestProcessVoiceWithoutFollowupFlag(t *testing.T) {
	h := newHarness(fullCaps())
	h.seedTenant(models.TenantSettings{AIMode: models.AIModeAutopilot, AutopilotCategories: []string{"INFO"}, ConfidenceThreshold: 0.5})

	text := "quería información"
	out, err := h.pipeline.Process(context.Background(), InboundEvent{Source: models.ChannelVoiceCalls, Phone: "+549119", Text: &text, IdempotencyKey: "voice-2"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Autopilot != AutopilotSkipped || len(h.repo.jobs) != 0 || h.sender.count() != 0 {
		t.Fatalf("voice autopilot needs the follow-up flag")
	}
}

func TestConversationPriority(t *testing.T) {
	cases := []struct {
		intent     string
		confidence float64
		want       models.Priority
	}{
		{"reclamo", 0.9, models.PriorityHigh},
		{"tracking", 0.8, models.PriorityLow},
		{"info", 0.6, models.PriorityLow},
		{"facturacion", 0.8, models.PriorityMedium},
		{"cotizacion", 0.7, models.PriorityMedium},
		{"otro", 0.5, models.PriorityMedium},
		{"tracking", 0.95, models.PriorityHigh},
	}
	for _, tc := range cases {
		got := ConversationPriority(models.TriageResult{Intent: tc.intent, Confidence: tc.confidence})
		if got != tc.want {
			t.Fatalf("%s/%v: expected %s, got %s", tc.intent, tc.confidence, tc.want, got)
		}
	}
}
