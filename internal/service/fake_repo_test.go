package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/channel"
	"github.com/atiendo/backend/internal/models"
)

// memRepo mimics the store's uniqueness rules in memory.
type memRepo struct {
	mu sync.Mutex

	tenants       []models.Tenant
	accounts      []models.ChannelAccount
	events        map[string]*models.EventLog
	customers     []models.Customer
	conversations []models.Conversation
	messages      []models.Message
	tickets       []models.Ticket
	jobs          []models.Job

	failCreateAccount error
	failEnsureTicket  error
	clock             time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{events: map[string]*models.EventLog{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memRepo) GetTenant(ctx context.Context, id string) (models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Tenant{}, apperr.NotFound("tenant")
}

func (r *memRepo) EarliestTenant(ctx context.Context) (models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tenants) == 0 {
		return models.Tenant{}, apperr.NotFound("tenant")
	}
	return r.tenants[0], nil
}

func (r *memRepo) CreateTenant(ctx context.Context, t models.Tenant) (models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Slug == t.Slug {
			return existing, nil
		}
	}
	t.CreatedAt = r.tick()
	t.UpdatedAt = t.CreatedAt
	r.tenants = append(r.tenants, t)
	return t, nil
}

func (r *memRepo) FindActiveChannelAccount(ctx context.Context, accountKey string) (models.ChannelAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.AccountKey == accountKey && a.Active {
			return a, nil
		}
	}
	return models.ChannelAccount{}, apperr.NotFound("channel account")
}

func (r *memRepo) CreateChannelAccount(ctx context.Context, a models.ChannelAccount) (models.ChannelAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateAccount != nil {
		return models.ChannelAccount{}, r.failCreateAccount
	}
	for _, existing := range r.accounts {
		if existing.TenantID == a.TenantID && existing.AccountKey == a.AccountKey {
			return existing, nil
		}
	}
	a.CreatedAt = r.tick()
	r.accounts = append(r.accounts, a)
	return a, nil
}

func (r *memRepo) ClaimEventLog(ctx context.Context, e models.EventLog) (models.EventLog, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.events[e.IdempotencyKey]; ok {
		if existing.Status == models.EventProcessed {
			return *existing, true, nil
		}
		existing.RetryCount++
		return *existing, false, nil
	}
	e.Status = models.EventPending
	e.CreatedAt = r.tick()
	r.events[e.IdempotencyKey] = &e
	return e, false, nil
}

func (r *memRepo) eventByID(id string) *models.EventLog {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *memRepo) MarkEventProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.eventByID(id)
	if e == nil {
		return apperr.NotFound("event")
	}
	now := r.tick()
	e.Status = models.EventProcessed
	e.Error = nil
	e.ProcessedAt = &now
	return nil
}

func (r *memRepo) MarkEventFailed(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.eventByID(id)
	if e == nil {
		return apperr.NotFound("event")
	}
	e.Status = models.EventFailed
	e.Error = &reason
	return nil
}

func (r *memRepo) EnsureCustomer(ctx context.Context, tenantID, phone, name string) (models.Customer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.TenantID == tenantID && c.PhoneNumber == phone {
			return c, false, nil
		}
	}
	c := models.Customer{ID: fmt.Sprintf("cust-%d", len(r.customers)+1), TenantID: tenantID, PhoneNumber: phone, Name: name, CreatedAt: r.tick()}
	r.customers = append(r.customers, c)
	return c, true, nil
}

func (r *memRepo) EnsureOpenConversation(ctx context.Context, tenantID, customerID string, ch models.Channel) (models.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := -1
	for i, c := range r.conversations {
		if c.TenantID == tenantID && c.CustomerID == customerID && c.PrimaryChannel == ch && c.Status.Reusable() {
			if best == -1 || c.UpdatedAt.After(r.conversations[best].UpdatedAt) {
				best = i
			}
		}
	}
	if best >= 0 {
		return r.conversations[best], false, nil
	}
	now := r.tick()
	c := models.Conversation{
		ID:             fmt.Sprintf("conv-%d", len(r.conversations)+1),
		TenantID:       tenantID,
		CustomerID:     customerID,
		PrimaryChannel: ch,
		Status:         models.ConversationOpen,
		Priority:       models.PriorityMedium,
		Tags:           []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.conversations = append(r.conversations, c)
	return c, true, nil
}

func (r *memRepo) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Conversation{}, apperr.NotFound("conversation")
}

func (r *memRepo) UpdateConversationState(ctx context.Context, id string, status models.ConversationStatus, priority models.Priority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.conversations {
		if r.conversations[i].ID != id {
			continue
		}
		if status != "" {
			r.conversations[i].Status = status
		}
		if priority != "" {
			r.conversations[i].Priority = priority
		}
		r.conversations[i].UpdatedAt = r.tick()
		return nil
	}
	return apperr.NotFound("conversation")
}

func (r *memRepo) InsertMessage(ctx context.Context, m models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	m.CreatedAt = r.tick()
	r.messages = append(r.messages, m)
	return m, nil
}

func (r *memRepo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return models.Message{}, apperr.NotFound("message")
}

func (r *memRepo) LatestMessage(ctx context.Context, conversationID string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ConversationID == conversationID {
			return r.messages[i], nil
		}
	}
	return models.Message{}, apperr.NotFound("message")
}

func (r *memRepo) MergeMessageMetadata(ctx context.Context, id string, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			for k, v := range patch {
				r.messages[i].Metadata[k] = v
			}
			return nil
		}
	}
	return apperr.NotFound("message")
}

func (r *memRepo) EnsureOpenTicket(ctx context.Context, t models.Ticket) (models.Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEnsureTicket != nil {
		return models.Ticket{}, false, r.failEnsureTicket
	}
	for _, existing := range r.tickets {
		if existing.ConversationID == t.ConversationID && existing.Status != models.TicketClosed {
			return existing, false, nil
		}
	}
	t.CreatedAt = r.tick()
	r.tickets = append(r.tickets, t)
	return t, true, nil
}

func (r *memRepo) EnqueueJob(ctx context.Context, j models.Job) (models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.Status = models.JobQueued
	j.CreatedAt = r.tick()
	r.jobs = append(r.jobs, j)
	return j, nil
}

func (r *memRepo) messagesIn(conversationID string, dir models.Direction) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.Direction == dir {
			out = append(out, m)
		}
	}
	return out
}

func (r *memRepo) conversation(id string) models.Conversation {
	c, _ := r.GetConversation(context.Background(), id)
	return c
}

type sentText struct {
	phone string
	text  string
}

type fakeSender struct {
	mu   sync.Mutex
	fail bool
	sent []sentText
}

func (s *fakeSender) SendText(ctx context.Context, phone, text string, opts channel.SendOptions) channel.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentText{phone: phone, text: text})
	if s.fail {
		return channel.SendResult{Error: "provider down"}
	}
	return channel.SendResult{Success: true, MessageID: fmt.Sprintf("wamid-%d", len(s.sent))}
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
