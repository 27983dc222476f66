package domain

import (
	"strings"
	"time"
)

// Member is a club member profile. Profiles are owned by the membership
// system; messaging only reads them.
type Member struct {
	ID        int64   `db:"id" json:"id"`
	UserID    *string `db:"user_id" json:"-"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Email     string  `db:"email" json:"email"`
	PhotoURL  *string `db:"photo_url" json:"photo_url,omitempty"`
	IsAdmin   bool    `db:"is_admin" json:"is_admin"`
}

// DisplayName returns "first last", falling back to the email address.
func (m *Member) DisplayName() string {
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if name == "" {
		return m.Email
	}
	return name
}

// Principal is the authenticated identity behind a request. MemberID is nil
// when the account has no linked member profile.
type Principal struct {
	UserID   string
	MemberID *int64
	IsAdmin  bool
}

// HasMember reports whether the principal is linked to a member profile.
func (p Principal) HasMember() bool {
	return p.MemberID != nil
}

// DeliveryState tracks the two-phase write of a message and its recipients.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
)

// Message is one authored message. Body is encrypted at rest.
type Message struct {
	ID                 int64         `db:"id"`
	Subject            string        `db:"subject"`
	Body               string        `db:"body"`
	CreatedAt          time.Time     `db:"created_at"`
	AuthorUserID       string        `db:"author_user_id"`
	AuthorMemberID     *int64        `db:"author_member_id"`
	IsBroadcast        bool          `db:"is_broadcast"`
	DeliveryState      DeliveryState `db:"delivery_state"`
	IntendedRecipients int           `db:"intended_recipients"`
}

// MessageRecipient is a delivery record: one row per (message, recipient).
// ReadAt is nil until the recipient reads the message.
type MessageRecipient struct {
	ID                int64      `db:"id"`
	MessageID         int64      `db:"message_id"`
	RecipientMemberID int64      `db:"recipient_member_id"`
	CreatedAt         time.Time  `db:"created_at"`
	ReadAt            *time.Time `db:"read_at"`
}

// InboundRow is a delivery addressed to a member joined to its message.
type InboundRow struct {
	Receipt MessageRecipient
	Message Message
}

// OutboundRow is an authored message with all of its delivery records.
type OutboundRow struct {
	Message    Message
	Recipients []MessageRecipient
}

// Direction tags a thread entry relative to the viewer.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ThreadEntry is one message as seen from the viewer's side of a thread.
type ThreadEntry struct {
	ReceiptID      int64      `json:"receipt_id,omitempty"`
	MessageID      int64      `json:"message_id"`
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	AuthorMemberID *int64     `json:"author_member_id"`
	Direction      Direction  `json:"direction"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Mine reports whether the viewer sent the entry.
func (e ThreadEntry) Mine() bool {
	return e.Direction == DirectionOut
}

// StaffConversationKey identifies the members' single conversation with
// the club staff.
const StaffConversationKey = "staff"

// ConversationSummary is a derived, never persisted, conversation preview.
type ConversationSummary struct {
	Key            string    `json:"key"`
	CounterpartyID int64     `json:"counterparty_id,omitempty"`
	DisplayName    string    `json:"display_name"`
	Email          string    `json:"email,omitempty"`
	PhotoURL       *string   `json:"photo_url,omitempty"`
	LastSubject    string    `json:"last_subject"`
	LastBody       string    `json:"last_body"`
	LastAt         time.Time `json:"last_at"`
	Unread         int       `json:"unread"`
}
