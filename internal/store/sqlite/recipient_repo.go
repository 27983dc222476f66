package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"clubdesk/internal/domain"
)

type RecipientRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecipientRepo(db *sql.DB) *RecipientRepo {
	return &RecipientRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ domain.RecipientRepository = (*RecipientRepo)(nil)

func (r *RecipientRepo) CreateBatch(ctx context.Context, messageID int64, memberIDs []int64) ([]*domain.MessageRecipient, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	createdAt := r.now()
	values := strings.TrimSuffix(strings.Repeat("(?, ?, ?),", len(memberIDs)), ",")
	args := make([]any, 0, len(memberIDs)*3)
	for _, id := range memberIDs {
		args = append(args, messageID, id, createdAt)
	}
	rows, err := r.db.QueryContext(ctx, `
		INSERT INTO message_recipients (message_id, recipient_member_id, created_at)
		VALUES `+values+`
		ON CONFLICT (message_id, recipient_member_id) DO NOTHING
		RETURNING id, message_id, recipient_member_id, created_at, read_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("insert recipients: %w", err)
	}
	defer rows.Close()

	var res []*domain.MessageRecipient
	for rows.Next() {
		rc := &domain.MessageRecipient{}
		var readAt sql.NullTime
		if err := rows.Scan(&rc.ID, &rc.MessageID, &rc.RecipientMemberID, &rc.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		rc.ReadAt = nullTimePtr(readAt)
		res = append(res, rc)
	}
	return res, rows.Err()
}

func (r *RecipientRepo) ListInbound(ctx context.Context, recipientMemberID int64) ([]*domain.InboundRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`,
		       mr.id, mr.recipient_member_id, mr.created_at, mr.read_at
		FROM message_recipients mr
		JOIN messages m ON m.id = mr.message_id
		WHERE mr.recipient_member_id = ?
		ORDER BY m.created_at ASC, m.id ASC
	`, recipientMemberID)
	if err != nil {
		return nil, fmt.Errorf("list inbound: %w", err)
	}
	defer rows.Close()

	var res []*domain.InboundRow
	for rows.Next() {
		row := &domain.InboundRow{}
		rc := &row.Receipt
		var readAt sql.NullTime
		if err := scanMessage(rows, &row.Message,
			&rc.ID, &rc.RecipientMemberID, &rc.CreatedAt, &readAt,
		); err != nil {
			return nil, fmt.Errorf("scan inbound: %w", err)
		}
		rc.MessageID = row.Message.ID
		rc.ReadAt = nullTimePtr(readAt)
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r *RecipientRepo) MarkRead(ctx context.Context, receiptID, recipientMemberID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE message_recipients
		SET read_at = ?
		WHERE id = ? AND recipient_member_id = ? AND read_at IS NULL
	`, at.UTC(), receiptID, recipientMemberID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *RecipientRepo) MarkReadFromAuthor(ctx context.Context, recipientMemberID, authorMemberID int64, at time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE message_recipients
		SET read_at = ?
		WHERE recipient_member_id = ?
		  AND read_at IS NULL
		  AND message_id IN (SELECT id FROM messages WHERE author_member_id = ?)
		RETURNING id
	`, at.UTC(), recipientMemberID, authorMemberID)
	if err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	return scanIDRows(rows)
}

func (r *RecipientRepo) MarkAllRead(ctx context.Context, recipientMemberID int64, at time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE message_recipients
		SET read_at = ?
		WHERE recipient_member_id = ? AND read_at IS NULL
		RETURNING id
	`, at.UTC(), recipientMemberID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	return scanIDRows(rows)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanIDRows(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
