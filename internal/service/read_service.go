package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/metrics"
	"clubdesk/internal/realtime"
)

// ReadResult reports how many deliveries changed. Degraded is set when the
// store update failed; callers treat it as a stale unread count, not an error.
type ReadResult struct {
	Updated  int  `json:"updated"`
	Degraded bool `json:"degraded,omitempty"`
}

// ReadService moves deliveries from unread to read. Failures are logged and
// reported through ReadResult rather than returned.
type ReadService struct {
	recipients domain.RecipientRepository
	publisher  realtime.Publisher
	log        *zap.Logger
	now        func() time.Time
}

func NewReadService(recipients domain.RecipientRepository, publisher realtime.Publisher, log *zap.Logger) *ReadService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReadService{
		recipients: recipients,
		publisher:  publisher,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MarkRead marks one of the viewer's deliveries as read. A non-positive
// receipt id or an already-read delivery is a no-op.
func (s *ReadService) MarkRead(ctx context.Context, viewer domain.Principal, receiptID int64) ReadResult {
	if receiptID <= 0 || !viewer.HasMember() {
		return ReadResult{}
	}
	me := *viewer.MemberID
	at := s.now()

	changed, err := s.recipients.MarkRead(ctx, receiptID, me, at)
	if err != nil {
		return s.degraded("mark read", err, zap.Int64("receipt_id", receiptID))
	}
	if !changed {
		return ReadResult{}
	}
	s.publishUpdates(ctx, me, []int64{receiptID}, at)
	return ReadResult{Updated: 1}
}

// MarkConversationRead marks every unread delivery to the viewer authored by
// the counterparty in one store operation.
func (s *ReadService) MarkConversationRead(ctx context.Context, viewer domain.Principal, counterpartyID int64) ReadResult {
	if counterpartyID <= 0 || !viewer.HasMember() {
		return ReadResult{}
	}
	me := *viewer.MemberID
	at := s.now()

	ids, err := s.recipients.MarkReadFromAuthor(ctx, me, counterpartyID, at)
	if err != nil {
		return s.degraded("mark conversation read", err, zap.Int64("counterparty_id", counterpartyID))
	}
	s.publishUpdates(ctx, me, ids, at)
	return ReadResult{Updated: len(ids)}
}

// MarkStaffConversationRead marks every unread delivery to the viewer.
func (s *ReadService) MarkStaffConversationRead(ctx context.Context, viewer domain.Principal) ReadResult {
	if !viewer.HasMember() {
		return ReadResult{}
	}
	me := *viewer.MemberID
	at := s.now()

	ids, err := s.recipients.MarkAllRead(ctx, me, at)
	if err != nil {
		return s.degraded("mark staff conversation read", err)
	}
	s.publishUpdates(ctx, me, ids, at)
	return ReadResult{Updated: len(ids)}
}

func (s *ReadService) degraded(op string, err error, fields ...zap.Field) ReadResult {
	metrics.ReadMarkFailures.Inc()
	s.log.Warn(op+" failed", append(fields, zap.Error(err))...)
	return ReadResult{Degraded: true}
}

func (s *ReadService) publishUpdates(ctx context.Context, memberID int64, receiptIDs []int64, at time.Time) {
	if s.publisher == nil {
		return
	}
	for _, id := range receiptIDs {
		s.publisher.Publish(ctx, realtime.Event{
			Kind:              realtime.EventUpdate,
			RecipientMemberID: memberID,
			ReceiptID:         id,
			At:                at,
		})
	}
}
