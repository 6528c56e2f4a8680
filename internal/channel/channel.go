package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

type SendOptions struct {
	ConversationID string
	ReplyTo        string
}

type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender delivers outbound text. Delivery failures are reported in the
// result, not as a Go error.
type Sender interface {
	SendText(ctx context.Context, phone, text string, opts SendOptions) SendResult
}

// BotClient posts messages to the WhatsApp bot provider.
type BotClient struct {
	http *resty.Client
}

func NewBotClient(baseURL, apiKey string, timeout time.Duration) (*BotClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("WHATSAPP_BOT_URL is not set")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	if apiKey != "" {
		client.SetHeader("x-api-key", apiKey)
	}
	return &BotClient{http: client}, nil
}

type sendRequest struct {
	To             string `json:"to"`
	Text           string `json:"text"`
	ConversationID string `json:"conversationId,omitempty"`
	ReplyTo        string `json:"replyTo,omitempty"`
}

type sendResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

func (c *BotClient) SendText(ctx context.Context, phone, text string, opts SendOptions) SendResult {
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{To: phone, Text: text, ConversationID: opts.ConversationID, ReplyTo: opts.ReplyTo}).
		SetResult(&out).
		Post("/messages")
	if err != nil {
		return SendResult{Error: fmt.Sprintf("send request failed: %v", err)}
	}
	if resp.IsError() {
		return SendResult{Error: fmt.Sprintf("bot provider error: status %s, body: %s", resp.Status(), resp.String())}
	}
	id := out.MessageID
	if id == "" {
		id = out.ID
	}
	return SendResult{Success: true, MessageID: id}
}

// LogSender only logs; used when no provider is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendText(ctx context.Context, phone, text string, opts SendOptions) SendResult {
	s.Logger.Info().Str("to", phone).Str("conversation_id", opts.ConversationID).Str("text", text).Msg("outbound message (log only)")
	return SendResult{Success: true, MessageID: "log-" + fmt.Sprint(time.Now().UnixNano())}
}
