package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clubdesk/internal/domain"
)

const messageColumns = `m.id, m.subject, m.body, m.created_at, m.author_user_id, m.author_member_id,
	m.is_broadcast, m.delivery_state, m.intended_recipients`

type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.DeliveryState == "" {
		m.DeliveryState = domain.DeliveryPending
	}
	createdAt := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages
			(subject, body, created_at, author_user_id, author_member_id, is_broadcast, delivery_state, intended_recipients)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Subject, m.Body, createdAt, m.AuthorUserID, m.AuthorMemberID, m.IsBroadcast,
		string(m.DeliveryState), m.IntendedRecipients,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	m.CreatedAt = createdAt
	return nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET delivery_state = ? WHERE id = ?`,
		string(domain.DeliveryDelivered), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListOutboundByAuthorMember(ctx context.Context, memberID int64) ([]*domain.OutboundRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`,
		       mr.id, mr.recipient_member_id, mr.created_at, mr.read_at
		FROM messages m
		LEFT JOIN message_recipients mr ON mr.message_id = m.id
		WHERE m.author_member_id = ?
		ORDER BY m.created_at ASC, m.id ASC, mr.id ASC
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list outbound by member: %w", err)
	}
	return scanOutbound(rows)
}

func (r *MessageRepo) ListOutboundByAuthorUser(ctx context.Context, userID string) ([]*domain.OutboundRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`,
		       mr.id, mr.recipient_member_id, mr.created_at, mr.read_at
		FROM messages m
		LEFT JOIN message_recipients mr ON mr.message_id = m.id
		WHERE m.author_user_id = ?
		ORDER BY m.created_at ASC, m.id ASC, mr.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list outbound by user: %w", err)
	}
	return scanOutbound(rows)
}

func (r *MessageRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.delivery_state = ? AND m.created_at < ?
		ORDER BY m.created_at ASC
	`, string(domain.DeliveryPending), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := scanMessage(rows, m); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) CountRecipients(ctx context.Context, messageID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_recipients WHERE message_id = ?`, messageID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) Purge(ctx context.Context, messageID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_recipients WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete recipients: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge tx: %w", err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, m *domain.Message, extra ...any) error {
	var state string
	dest := append([]any{
		&m.ID, &m.Subject, &m.Body, &m.CreatedAt, &m.AuthorUserID, &m.AuthorMemberID,
		&m.IsBroadcast, &state, &m.IntendedRecipients,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return fmt.Errorf("scan message: %w", err)
	}
	m.DeliveryState = domain.DeliveryState(state)
	return nil
}

func scanOutbound(rows *sql.Rows) ([]*domain.OutboundRow, error) {
	defer rows.Close()
	var (
		res     []*domain.OutboundRow
		current *domain.OutboundRow
	)
	for rows.Next() {
		var (
			m           domain.Message
			receiptID   sql.NullInt64
			recipientID sql.NullInt64
			deliveredAt sql.NullTime
			readAt      sql.NullTime
		)
		if err := scanMessage(rows, &m, &receiptID, &recipientID, &deliveredAt, &readAt); err != nil {
			return nil, err
		}
		if current == nil || current.Message.ID != m.ID {
			current = &domain.OutboundRow{Message: m}
			res = append(res, current)
		}
		if !receiptID.Valid {
			continue
		}
		rc := domain.MessageRecipient{
			ID:                receiptID.Int64,
			MessageID:         m.ID,
			RecipientMemberID: recipientID.Int64,
			CreatedAt:         deliveredAt.Time,
		}
		if readAt.Valid {
			t := readAt.Time
			rc.ReadAt = &t
		}
		current.Recipients = append(current.Recipients, rc)
	}
	return res, rows.Err()
}
