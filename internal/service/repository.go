package service

import (
	"context"

	"github.com/atiendo/backend/internal/db"
	"github.com/atiendo/backend/internal/models"
)

// Repository is the persistence the pipeline needs. *db.Store satisfies it.
type Repository interface {
	GetTenant(ctx context.Context, id string) (models.Tenant, error)
	EarliestTenant(ctx context.Context) (models.Tenant, error)
	CreateTenant(ctx context.Context, t models.Tenant) (models.Tenant, error)
	FindActiveChannelAccount(ctx context.Context, accountKey string) (models.ChannelAccount, error)
	CreateChannelAccount(ctx context.Context, a models.ChannelAccount) (models.ChannelAccount, error)

	ClaimEventLog(ctx context.Context, e models.EventLog) (models.EventLog, bool, error)
	MarkEventProcessed(ctx context.Context, id string) error
	MarkEventFailed(ctx context.Context, id string, reason string) error

	EnsureCustomer(ctx context.Context, tenantID, phone, name string) (models.Customer, bool, error)
	EnsureOpenConversation(ctx context.Context, tenantID, customerID string, channel models.Channel) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	UpdateConversationState(ctx context.Context, id string, status models.ConversationStatus, priority models.Priority) error

	InsertMessage(ctx context.Context, m models.Message) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	LatestMessage(ctx context.Context, conversationID string) (models.Message, error)
	MergeMessageMetadata(ctx context.Context, id string, patch map[string]any) error

	EnsureOpenTicket(ctx context.Context, t models.Ticket) (models.Ticket, bool, error)

	EnqueueJob(ctx context.Context, j models.Job) (models.Job, error)
}

var _ Repository = (*db.Store)(nil)
