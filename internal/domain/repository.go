package domain

import (
	"context"
	"time"
)

// MemberRepository exposes the member profiles messaging depends on.
type MemberRepository interface {
	GetByID(ctx context.Context, id int64) (*Member, error)
	GetByUserID(ctx context.Context, userID string) (*Member, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*Member, error)
	ListAll(ctx context.Context) ([]*Member, error)
	ListAllIDs(ctx context.Context) ([]int64, error)
	ListAdminIDs(ctx context.Context) ([]int64, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	MarkDelivered(ctx context.Context, messageID int64) error
	ListOutboundByAuthorMember(ctx context.Context, memberID int64) ([]*OutboundRow, error)
	ListOutboundByAuthorUser(ctx context.Context, userID string) ([]*OutboundRow, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Message, error)
	CountRecipients(ctx context.Context, messageID int64) (int, error)
	Purge(ctx context.Context, messageID int64) error
}

// RecipientRepository defines operations on delivery records.
type RecipientRepository interface {
	// CreateBatch inserts one delivery per member id and returns the rows
	// actually created. Existing (message, recipient) pairs are skipped.
	CreateBatch(ctx context.Context, messageID int64, memberIDs []int64) ([]*MessageRecipient, error)
	ListInbound(ctx context.Context, recipientMemberID int64) ([]*InboundRow, error)
	// MarkRead sets read_at on one unread delivery owned by the recipient and
	// reports whether a row changed.
	MarkRead(ctx context.Context, receiptID, recipientMemberID int64, at time.Time) (bool, error)
	// MarkReadFromAuthor marks every unread delivery to the recipient authored
	// by the given member in one statement and returns the changed ids.
	MarkReadFromAuthor(ctx context.Context, recipientMemberID, authorMemberID int64, at time.Time) ([]int64, error)
	MarkAllRead(ctx context.Context, recipientMemberID int64, at time.Time) ([]int64, error)
}
