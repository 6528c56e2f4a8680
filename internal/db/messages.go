package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/atiendo/backend/internal/models"
)

const messageColumns = `id, conversation_id, channel, direction, text, raw_payload, metadata, created_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		m   models.Message
		raw []byte
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.Channel, &m.Direction, &m.Text, &raw, &m.Metadata, &m.CreatedAt)
	m.RawPayload = raw
	return m, err
}

func (s *Store) InsertMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	var raw any
	if len(m.RawPayload) > 0 {
		raw = string(m.RawPayload)
	}
	return scanMessage(s.Pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, channel, direction, text, raw_payload, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, NOW())
		RETURNING `+messageColumns,
		m.ID, m.ConversationID, m.Channel, m.Direction, m.Text, raw, m.Metadata))
}

func (s *Store) GetMessage(ctx context.Context, id string) (models.Message, error) {
	m, err := scanMessage(s.Pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	return m, notFound("message", err)
}

func (s *Store) LatestMessage(ctx context.Context, conversationID string) (models.Message, error) {
	m, err := scanMessage(s.Pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, conversationID))
	return m, notFound("message", err)
}

// MergeMessageMetadata shallow-merges patch into the message metadata.
func (s *Store) MergeMessageMetadata(ctx context.Context, id string, patch map[string]any) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE messages SET metadata = metadata || $1 WHERE id = $2`, patch, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("message", pgx.ErrNoRows)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
