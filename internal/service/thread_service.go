package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"clubdesk/internal/domain"
)

// Cipher encrypts and decrypts message bodies at rest.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(enc string) (string, error)
}

// ThreadService reconstructs the conversation between a viewer and one
// counterparty from inbound deliveries and outbound sends.
type ThreadService struct {
	messages   domain.MessageRepository
	recipients domain.RecipientRepository
	cipher     Cipher
	log        *zap.Logger
}

func NewThreadService(
	messages domain.MessageRepository,
	recipients domain.RecipientRepository,
	cipher Cipher,
	log *zap.Logger,
) *ThreadService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadService{
		messages:   messages,
		recipients: recipients,
		cipher:     cipher,
		log:        log,
	}
}

// ListMyThread returns a member's thread with the staff: everything
// delivered to the member plus everything the principal authored.
func (s *ThreadService) ListMyThread(ctx context.Context, viewer domain.Principal) ([]domain.ThreadEntry, error) {
	if !viewer.HasMember() {
		return nil, domain.ErrNoMemberProfile
	}

	inbound, err := s.recipients.ListInbound(ctx, *viewer.MemberID)
	if err != nil {
		return nil, fmt.Errorf("list inbound: %w", err)
	}
	outbound, err := s.messages.ListOutboundByAuthorUser(ctx, viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("list outbound: %w", err)
	}

	in := make([]domain.ThreadEntry, 0, len(inbound))
	for _, row := range inbound {
		in = append(in, s.inboundEntry(row))
	}
	out := make([]domain.ThreadEntry, 0, len(outbound))
	for _, row := range outbound {
		out = append(out, s.outboundEntry(row, nil))
	}
	return mergeThread(in, out), nil
}

// ListThreadWithMember returns an admin's thread with one member: deliveries
// to the admin authored by the member plus the admin's sends that reached
// the member.
func (s *ThreadService) ListThreadWithMember(ctx context.Context, viewer domain.Principal, counterpartyID int64) ([]domain.ThreadEntry, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrForbidden
	}
	if !viewer.HasMember() {
		return nil, domain.ErrNoMemberProfile
	}
	if counterpartyID <= 0 {
		return nil, fmt.Errorf("%w: counterparty id must be positive", domain.ErrInvalidInput)
	}
	me := *viewer.MemberID

	inbound, err := s.recipients.ListInbound(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("list inbound: %w", err)
	}
	outbound, err := s.messages.ListOutboundByAuthorMember(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("list outbound: %w", err)
	}

	var in []domain.ThreadEntry
	for _, row := range inbound {
		if row.Message.AuthorMemberID == nil || *row.Message.AuthorMemberID != counterpartyID {
			continue
		}
		in = append(in, s.inboundEntry(row))
	}
	var out []domain.ThreadEntry
	for _, row := range outbound {
		rc := findRecipient(row.Recipients, counterpartyID)
		if rc == nil {
			continue
		}
		out = append(out, s.outboundEntry(row, rc))
	}
	return mergeThread(in, out), nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *ThreadService) inboundEntry(row *domain.InboundRow) domain.ThreadEntry {
	return domain.ThreadEntry{
		ReceiptID:      row.Receipt.ID,
		MessageID:      row.Message.ID,
		Subject:        row.Message.Subject,
		Body:           s.decrypt(row.Message),
		CreatedAt:      row.Message.CreatedAt,
		AuthorMemberID: row.Message.AuthorMemberID,
		Direction:      domain.DirectionIn,
		ReadAt:         row.Receipt.ReadAt,
	}
}

// outboundEntry builds the viewer's copy of a sent message. When rc is set
// the entry carries that delivery's receipt id and read state.
func (s *ThreadService) outboundEntry(row *domain.OutboundRow, rc *domain.MessageRecipient) domain.ThreadEntry {
	e := domain.ThreadEntry{
		MessageID:      row.Message.ID,
		Subject:        row.Message.Subject,
		Body:           s.decrypt(row.Message),
		CreatedAt:      row.Message.CreatedAt,
		AuthorMemberID: row.Message.AuthorMemberID,
		Direction:      domain.DirectionOut,
	}
	if rc != nil {
		e.ReceiptID = rc.ID
		e.ReadAt = rc.ReadAt
	}
	return e
}

// decrypt falls back to the stored body when it cannot be decrypted.
func (s *ThreadService) decrypt(m domain.Message) string {
	return decryptBody(s.cipher, s.log, m)
}

func decryptBody(c Cipher, log *zap.Logger, m domain.Message) string {
	if c == nil {
		return m.Body
	}
	plain, err := c.Decrypt(m.Body)
	if err != nil {
		log.Debug("message body not decryptable, returning raw", zap.Int64("message_id", m.ID))
		return m.Body
	}
	return plain
}

func findRecipient(rcs []domain.MessageRecipient, memberID int64) *domain.MessageRecipient {
	for i := range rcs {
		if rcs[i].RecipientMemberID == memberID {
			return &rcs[i]
		}
	}
	return nil
}

// mergeThread concatenates both sides, keeps one entry per message (the
// outbound copy when a message appears on both sides) and orders by
// created_at, message id, receipt id.
func mergeThread(inbound, outbound []domain.ThreadEntry) []domain.ThreadEntry {
	res := make([]domain.ThreadEntry, 0, len(inbound)+len(outbound))
	seen := make(map[int64]struct{}, len(inbound)+len(outbound))
	for _, e := range outbound {
		if _, ok := seen[e.MessageID]; ok {
			continue
		}
		seen[e.MessageID] = struct{}{}
		res = append(res, e)
	}
	for _, e := range inbound {
		if _, ok := seen[e.MessageID]; ok {
			continue
		}
		seen[e.MessageID] = struct{}{}
		res = append(res, e)
	}

	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.MessageID != b.MessageID {
			return a.MessageID < b.MessageID
		}
		return a.ReceiptID < b.ReceiptID
	})
	return res
}
