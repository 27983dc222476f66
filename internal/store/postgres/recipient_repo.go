package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clubdesk/internal/domain"
)

type RecipientRepo struct {
	db *sql.DB
}

func NewRecipientRepo(db *sql.DB) *RecipientRepo {
	return &RecipientRepo{db: db}
}

var _ domain.RecipientRepository = (*RecipientRepo)(nil)

func (r *RecipientRepo) CreateBatch(ctx context.Context, messageID int64, memberIDs []int64) ([]*domain.MessageRecipient, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	// pgx/stdlib binds []int64 as bigint[], so one statement covers the batch.
	rows, err := r.db.QueryContext(ctx, `
		INSERT INTO message_recipients (message_id, recipient_member_id, created_at)
		SELECT $1, rid, NOW() FROM unnest($2::bigint[]) AS rid
		ON CONFLICT (message_id, recipient_member_id) DO NOTHING
		RETURNING id, message_id, recipient_member_id, created_at, read_at
	`, messageID, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("insert recipients: %w", err)
	}
	defer rows.Close()

	var res []*domain.MessageRecipient
	for rows.Next() {
		rc := &domain.MessageRecipient{}
		if err := rows.Scan(&rc.ID, &rc.MessageID, &rc.RecipientMemberID, &rc.CreatedAt, &rc.ReadAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

func (r *RecipientRepo) ListInbound(ctx context.Context, recipientMemberID int64) ([]*domain.InboundRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mr.id, mr.message_id, mr.recipient_member_id, mr.created_at, mr.read_at,
		       `+messageColumns+`
		FROM message_recipients mr
		JOIN messages m ON m.id = mr.message_id
		WHERE mr.recipient_member_id = $1
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
		m := &row.Message
		var state string
		if err := rows.Scan(
			&rc.ID, &rc.MessageID, &rc.RecipientMemberID, &rc.CreatedAt, &rc.ReadAt,
			&m.ID, &m.Subject, &m.Body, &m.CreatedAt, &m.AuthorUserID, &m.AuthorMemberID,
			&m.IsBroadcast, &state, &m.IntendedRecipients,
		); err != nil {
			return nil, fmt.Errorf("scan inbound: %w", err)
		}
		m.DeliveryState = domain.DeliveryState(state)
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r *RecipientRepo) MarkRead(ctx context.Context, receiptID, recipientMemberID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE message_recipients
		SET read_at = $1
		WHERE id = $2 AND recipient_member_id = $3 AND read_at IS NULL
	`, at, receiptID, recipientMemberID)
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM mark_conversation_read($1, $2, $3) AS id`,
		recipientMemberID, authorMemberID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	return scanIDRows(rows)
}

func (r *RecipientRepo) MarkAllRead(ctx context.Context, recipientMemberID int64, at time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE message_recipients
		SET read_at = $1
		WHERE recipient_member_id = $2 AND read_at IS NULL
		RETURNING id
	`, at, recipientMemberID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	return scanIDRows(rows)
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
