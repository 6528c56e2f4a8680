package models

import (
	"encoding/json"
	"strings"
	"time"
)

type AIMode string

const (
	AIModeAssisted  AIMode = "ASSISTED"
	AIModeAutopilot AIMode = "AUTOPILOT"
)

type TenantSettings struct {
	AIMode                AIMode   `json:"aiMode" validate:"required,oneof=ASSISTED AUTOPILOT"`
	AutopilotCategories   []string `json:"autopilotCategories"`
	ConfidenceThreshold   float64  `json:"confidenceThreshold" validate:"gte=0,lte=1"`
	AutopilotCallFollowup bool     `json:"autopilotCallFollowup"`
}

// DefaultTenantSettings is what a bootstrapped tenant starts with.
func DefaultTenantSettings() TenantSettings {
	return TenantSettings{
		AIMode:              AIModeAssisted,
		AutopilotCategories: []string{CategoryInfo, CategoryTracking},
		ConfidenceThreshold: 0.7,
	}
}

func (s TenantSettings) AllowsCategory(category string) bool {
	for _, c := range s.AutopilotCategories {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}

type Tenant struct {
	ID        string         `json:"id"`
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	Settings  TenantSettings `json:"settings"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Channel string

const (
	ChannelWhatsAppBot Channel = "whatsapp-bot"
	ChannelVoiceCalls  Channel = "voice-calls"
)

// ChannelForAccountKey guesses the channel of an unseen account key.
func ChannelForAccountKey(key string) Channel {
	k := strings.ToLower(key)
	if strings.Contains(k, "voice") || strings.Contains(k, "call") {
		return ChannelVoiceCalls
	}
	return ChannelWhatsAppBot
}

type ChannelAccount struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Channel    Channel   `json:"channel"`
	AccountKey string    `json:"accountKey"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Customer struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	PhoneNumber string         `json:"phoneNumber"`
	Name        string         `json:"name"`
	Email       *string        `json:"email,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "OPEN"
	ConversationPending  ConversationStatus = "PENDING"
	ConversationResolved ConversationStatus = "RESOLVED"
	ConversationClosed   ConversationStatus = "CLOSED"
)

// Reusable reports whether new inbound messages may attach to the conversation.
func (s ConversationStatus) Reusable() bool {
	return s == ConversationOpen || s == ConversationPending
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type Conversation struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenantId"`
	CustomerID     string             `json:"customerId"`
	PrimaryChannel Channel            `json:"primaryChannel"`
	Status         ConversationStatus `json:"status"`
	Priority       Priority           `json:"priority"`
	Tags           []string           `json:"tags"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Channel        Channel         `json:"channel"`
	Direction      Direction       `json:"direction"`
	Text           *string         `json:"text,omitempty"`
	RawPayload     json.RawMessage `json:"rawPayload,omitempty"`
	Metadata       map[string]any  `json:"metadata"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// TextValue returns the message text, or "" when it has none.
func (m Message) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

type TicketStatus string

const (
	TicketNew             TicketStatus = "NEW"
	TicketInProgress      TicketStatus = "IN_PROGRESS"
	TicketWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketResolved        TicketStatus = "RESOLVED"
	TicketClosed          TicketStatus = "CLOSED"
)

const (
	CategoryTracking    = "TRACKING"
	CategoryFacturacion = "FACTURACION"
	CategoryReclamo     = "RECLAMO"
	CategoryCotizacion  = "COTIZACION"
	CategoryInfo        = "INFO"
	CategoryOtro        = "OTRO"
)

type Ticket struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenantId"`
	ConversationID string       `json:"conversationId"`
	Number         string       `json:"number"`
	Status         TicketStatus `json:"status"`
	Category       string       `json:"category"`
	Priority       Priority     `json:"priority"`
	Title          string       `json:"title"`
	Summary        *string      `json:"summary,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventProcessed EventStatus = "processed"
	EventFailed    EventStatus = "failed"
)

type EventLog struct {
	ID             string          `json:"id"`
	TenantID       *string         `json:"tenantId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Source         string          `json:"source"`
	Type           string          `json:"type"`
	Status         EventStatus     `json:"status"`
	RetryCount     int             `json:"retryCount"`
	Error          *string         `json:"error,omitempty"`
	RawPayload     json.RawMessage `json:"rawPayload,omitempty"`
	ProcessedAt    *time.Time      `json:"processedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type SuggestedAction struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

type TriageResult struct {
	Intent            string            `json:"intent"`
	Confidence        float64           `json:"confidence"`
	MissingFields     []string          `json:"missingFields"`
	SuggestedActions  []SuggestedAction `json:"suggestedActions"`
	SuggestedReply    string            `json:"suggestedReply"`
	AutopilotEligible bool              `json:"autopilotEligible"`
}

// Category is the ticket category derived from the intent.
func (r TriageResult) Category() string {
	return strings.ToUpper(r.Intent)
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	JobType   string          `json:"jobType"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError *string         `json:"lastError,omitempty"`
	RunAfter  time.Time       `json:"runAfter"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Capabilities records which optional tables exist in the connected database.
type Capabilities struct {
	EventLog bool `json:"eventLog"`
	Jobs     bool `json:"jobs"`
}
