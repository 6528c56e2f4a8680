package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/models"
)

const ticketColumns = `id, tenant_id, conversation_id, number, status, category, priority, title, summary, created_at, updated_at`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.TenantID, &t.ConversationID, &t.Number, &t.Status, &t.Category, &t.Priority, &t.Title, &t.Summary, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) openTicket(ctx context.Context, conversationID string) (models.Ticket, error) {
	return scanTicket(s.Pool.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE conversation_id = $1 AND status <> 'CLOSED'
		ORDER BY created_at DESC LIMIT 1`, conversationID))
}

// EnsureOpenTicket returns the conversation's non-CLOSED ticket, inserting t when there is none.
func (s *Store) EnsureOpenTicket(ctx context.Context, t models.Ticket) (models.Ticket, bool, error) {
	existing, err := s.openTicket(ctx, t.ConversationID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, false, err
	}
	created, err := scanTicket(s.Pool.QueryRow(ctx, `
		INSERT INTO tickets (id, tenant_id, conversation_id, number, status, category, priority, title, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (conversation_id) WHERE status <> 'CLOSED' DO NOTHING
		RETURNING `+ticketColumns,
		t.ID, t.TenantID, t.ConversationID, t.Number, t.Status, t.Category, t.Priority, t.Title, t.Summary))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, false, err
	}
	existing, err = s.openTicket(ctx, t.ConversationID)
	return existing, false, notFound("ticket", err)
}

func (s *Store) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	t, err := scanTicket(s.Pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	return t, notFound("ticket", err)
}

type TicketFilter struct {
	Status   string
	Category string
	Priority string
	Q        string
	Limit    int
	Offset   int
}

func (s *Store) ListTickets(ctx context.Context, tenantID string, f TicketFilter) ([]models.Ticket, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{tenantID}
	wheres := []string{"tenant_id = $1"}
	if f.Status != "" {
		args = append(args, f.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, strings.ToUpper(f.Category))
		wheres = append(wheres, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, strings.ToUpper(f.Priority))
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.Q != "" {
		args = append(args, "%"+f.Q+"%")
		wheres = append(wheres, fmt.Sprintf("(title ILIKE $%d OR number ILIKE $%d)", len(args), len(args)))
	}
	query += " WHERE " + strings.Join(wheres, " AND ")
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type TicketUpdate struct {
	Status   *models.TicketStatus
	Priority *models.Priority
	Summary  *string
}

func (s *Store) UpdateTicket(ctx context.Context, id string, u TicketUpdate) (models.Ticket, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	if u.Status != nil {
		args = append(args, *u.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if u.Priority != nil {
		args = append(args, *u.Priority)
		sets = append(sets, fmt.Sprintf("priority = $%d", len(args)))
	}
	if u.Summary != nil {
		args = append(args, *u.Summary)
		sets = append(sets, fmt.Sprintf("summary = $%d", len(args)))
	}
	t, err := scanTicket(s.Pool.QueryRow(ctx, `UPDATE tickets SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+ticketColumns, args...))
	if isUniqueViolation(err) {
		return models.Ticket{}, apperr.Conflict("OPEN_TICKET_EXISTS", fmt.Errorf("conversation already has an open ticket: %w", err))
	}
	return t, notFound("ticket", err)
}
