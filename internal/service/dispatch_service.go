package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/metrics"
	"clubdesk/internal/realtime"
)

const DefaultRecipientBatchSize = 500

// DispatchInput describes one send. IsBroadcast overrides ToStaff, which
// overrides RecipientMemberIDs. ExcludeAuthor defaults to IsBroadcast.
type DispatchInput struct {
	Subject            string
	Body               string
	RecipientMemberIDs []string
	ToStaff            bool
	IsBroadcast        bool
	ExcludeAuthor      *bool
}

func (in DispatchInput) excludeAuthor() bool {
	if in.ExcludeAuthor != nil {
		return *in.ExcludeAuthor
	}
	return in.IsBroadcast
}

func (in DispatchInput) mode() string {
	switch {
	case in.IsBroadcast:
		return "broadcast"
	case in.ToStaff:
		return "staff"
	default:
		return "direct"
	}
}

// PartialDeliveryError reports a send whose message row was committed while
// one of the recipient batches failed. The message is left pending for the
// orphan reconciler.
type PartialDeliveryError struct {
	MessageID int64
	Delivered int
	Intended  int
	Err       error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("message %d delivered to %d of %d recipients: %v",
		e.MessageID, e.Delivered, e.Intended, e.Err)
}

func (e *PartialDeliveryError) Unwrap() []error {
	return []error{domain.ErrPartialDelivery, e.Err}
}

// DispatchService creates a message and its delivery records.
type DispatchService struct {
	members    domain.MemberRepository
	messages   domain.MessageRepository
	recipients domain.RecipientRepository
	cipher     Cipher
	publisher  realtime.Publisher
	log        *zap.Logger

	BatchSize int
}

func NewDispatchService(
	members domain.MemberRepository,
	messages domain.MessageRepository,
	recipients domain.RecipientRepository,
	cipher Cipher,
	publisher realtime.Publisher,
	batchSize int,
	log *zap.Logger,
) *DispatchService {
	if batchSize <= 0 {
		batchSize = DefaultRecipientBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DispatchService{
		members:    members,
		messages:   messages,
		recipients: recipients,
		cipher:     cipher,
		publisher:  publisher,
		log:        log,
		BatchSize:  batchSize,
	}
}

// Dispatch writes the message as pending, inserts its deliveries in batches
// and then marks it delivered. The returned message carries the plaintext
// body. A failed recipient batch returns the message together with a
// *PartialDeliveryError; deliveries committed before the failure are still
// announced.
func (s *DispatchService) Dispatch(ctx context.Context, author domain.Principal, in DispatchInput) (*domain.Message, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, fmt.Errorf("%w: message body cannot be empty", domain.ErrInvalidInput)
	}
	if author.UserID == "" {
		return nil, domain.ErrUnauthorized
	}

	ids, err := s.resolveRecipients(ctx, in)
	if err != nil {
		return nil, err
	}
	if in.excludeAuthor() && author.HasMember() {
		ids = removeID(ids, *author.MemberID)
	}

	body := in.Body
	if s.cipher != nil {
		if body, err = s.cipher.Encrypt(in.Body); err != nil {
			return nil, fmt.Errorf("encrypt body: %w", err)
		}
	}

	msg := &domain.Message{
		Subject:            in.Subject,
		Body:               body,
		AuthorUserID:       author.UserID,
		AuthorMemberID:     author.MemberID,
		IsBroadcast:        in.IsBroadcast,
		DeliveryState:      domain.DeliveryPending,
		IntendedRecipients: len(ids),
	}
	if len(ids) == 0 {
		msg.DeliveryState = domain.DeliveryDelivered
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	msg.Body = in.Body
	metrics.MessagesDispatched.WithLabelValues(in.mode()).Inc()

	log := s.log.With(zap.Int64("message_id", msg.ID), zap.Int("intended", len(ids)))
	if len(ids) == 0 {
		log.Info("message composed with no recipients")
		return msg, nil
	}

	created := make([]*domain.MessageRecipient, 0, len(ids))
	for start := 0; start < len(ids); start += s.BatchSize {
		end := min(start+s.BatchSize, len(ids))
		rows, err := s.recipients.CreateBatch(ctx, msg.ID, ids[start:end])
		if err != nil {
			metrics.PartialFanouts.Inc()
			log.Error("recipient batch failed",
				zap.Int("delivered", len(created)), zap.Int("batch_start", start), zap.Error(err))
			s.publishInserts(ctx, created)
			return msg, &PartialDeliveryError{
				MessageID: msg.ID,
				Delivered: len(created),
				Intended:  len(ids),
				Err:       err,
			}
		}
		created = append(created, rows...)
		metrics.DeliveriesCreated.Add(float64(len(rows)))
	}

	if err := s.messages.MarkDelivered(ctx, msg.ID); err != nil {
		// Every delivery exists; the reconciler finalizes the message later.
		log.Warn("mark delivered failed", zap.Error(err))
	} else {
		msg.DeliveryState = domain.DeliveryDelivered
	}

	s.publishInserts(ctx, created)
	log.Debug("message dispatched", zap.Int("delivered", len(created)))
	return msg, nil
}

func (s *DispatchService) resolveRecipients(ctx context.Context, in DispatchInput) ([]int64, error) {
	switch {
	case in.IsBroadcast:
		ids, err := s.members.ListAllIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list member ids: %w", err)
		}
		return ids, nil
	case in.ToStaff:
		ids, err := s.members.ListAdminIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list admin ids: %w", err)
		}
		return ids, nil
	}

	ids := NormalizeMemberIDs(in.RecipientMemberIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	known, err := s.members.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			res = append(res, id)
		}
	}
	return res, nil
}

func (s *DispatchService) publishInserts(ctx context.Context, rows []*domain.MessageRecipient) {
	if s.publisher == nil {
		return
	}
	for _, rc := range rows {
		s.publisher.Publish(ctx, realtime.Event{
			Kind:              realtime.EventInsert,
			RecipientMemberID: rc.RecipientMemberID,
			MessageID:         rc.MessageID,
			ReceiptID:         rc.ID,
			At:                rc.CreatedAt,
		})
	}
}

// NormalizeMemberIDs trims and parses raw ids, drops anything that is not a
// positive integer and removes duplicates keeping the first occurrence.
func NormalizeMemberIDs(raw []string) []int64 {
	res := make([]int64, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(r), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

func removeID(ids []int64, id int64) []int64 {
	res := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			res = append(res, v)
		}
	}
	return res
}
