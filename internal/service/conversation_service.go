package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"clubdesk/internal/domain"
)

const staffDisplayName = "Staff"

// ConversationService builds conversation previews. Nothing it returns is
// persisted; every call rescans deliveries and sends.
type ConversationService struct {
	members    domain.MemberRepository
	messages   domain.MessageRepository
	recipients domain.RecipientRepository
	threads    *ThreadService
	cipher     Cipher
	log        *zap.Logger
}

func NewConversationService(
	members domain.MemberRepository,
	messages domain.MessageRepository,
	recipients domain.RecipientRepository,
	threads *ThreadService,
	cipher Cipher,
	log *zap.Logger,
) *ConversationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationService{
		members:    members,
		messages:   messages,
		recipients: recipients,
		threads:    threads,
		cipher:     cipher,
		log:        log,
	}
}

// ListConversations returns one summary per member the admin has exchanged
// messages with, newest first. Rows whose counterparty has no member profile
// are skipped.
func (s *ConversationService) ListConversations(ctx context.Context, viewer domain.Principal) ([]domain.ConversationSummary, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrForbidden
	}
	if !viewer.HasMember() {
		return nil, domain.ErrNoMemberProfile
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

	members, err := s.members.GetByIDs(ctx, counterpartyIDs(me, inbound, outbound))
	if err != nil {
		return nil, fmt.Errorf("resolve counterparties: %w", err)
	}

	convs := make(map[int64]*domain.ConversationSummary)
	upsert := func(m *domain.Member) *domain.ConversationSummary {
		c, ok := convs[m.ID]
		if !ok {
			c = &domain.ConversationSummary{
				Key:            "member:" + strconv.FormatInt(m.ID, 10),
				CounterpartyID: m.ID,
				DisplayName:    m.DisplayName(),
				Email:          m.Email,
				PhotoURL:       m.PhotoURL,
			}
			convs[m.ID] = c
		}
		return c
	}
	touch := func(c *domain.ConversationSummary, msg domain.Message) {
		if msg.CreatedAt.After(c.LastAt) {
			c.LastAt = msg.CreatedAt
			c.LastSubject = msg.Subject
			c.LastBody = decryptBody(s.cipher, s.log, msg)
		}
	}

	for _, row := range inbound {
		author := row.Message.AuthorMemberID
		if author == nil || *author == me {
			continue
		}
		m, ok := members[*author]
		if !ok {
			s.log.Warn("skipping delivery from unknown member",
				zap.Int64("receipt_id", row.Receipt.ID), zap.Int64("author_member_id", *author))
			continue
		}
		c := upsert(m)
		touch(c, row.Message)
		if row.Receipt.ReadAt == nil {
			c.Unread++
		}
	}

	for _, row := range outbound {
		for _, rc := range row.Recipients {
			if rc.RecipientMemberID == me {
				continue
			}
			m, ok := members[rc.RecipientMemberID]
			if !ok {
				s.log.Warn("skipping delivery to unknown member",
					zap.Int64("receipt_id", rc.ID), zap.Int64("recipient_member_id", rc.RecipientMemberID))
				continue
			}
			touch(upsert(m), row.Message)
		}
	}

	res := make([]domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].LastAt.Equal(res[j].LastAt) {
			return res[i].LastAt.After(res[j].LastAt)
		}
		return res[i].CounterpartyID < res[j].CounterpartyID
	})
	return res, nil
}

// StaffConversation synthesizes a member's single conversation with the
// staff. It returns nil when the thread is empty.
func (s *ConversationService) StaffConversation(ctx context.Context, viewer domain.Principal) (*domain.ConversationSummary, error) {
	entries, err := s.threads.ListMyThread(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	last := entries[len(entries)-1]
	c := &domain.ConversationSummary{
		Key:         domain.StaffConversationKey,
		DisplayName: staffDisplayName,
		LastSubject: last.Subject,
		LastBody:    last.Body,
		LastAt:      last.CreatedAt,
	}
	for _, e := range entries {
		if e.Direction == domain.DirectionIn && e.ReadAt == nil {
			c.Unread++
		}
	}
	return c, nil
}

func counterpartyIDs(me int64, inbound []*domain.InboundRow, outbound []*domain.OutboundRow) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	add := func(id int64) {
		if id == me {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, row := range inbound {
		if row.Message.AuthorMemberID != nil {
			add(*row.Message.AuthorMemberID)
		}
	}
	for _, row := range outbound {
		for _, rc := range row.Recipients {
			add(rc.RecipientMemberID)
		}
	}
	return ids
}
