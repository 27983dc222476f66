package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"clubdesk/internal/domain"
	"clubdesk/internal/realtime"
)

type MockMemberRepo struct {
	mock.Mock
}

func (m *MockMemberRepo) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}

func (m *MockMemberRepo) GetByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}

func (m *MockMemberRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Member, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*domain.Member), args.Error(1)
}

func (m *MockMemberRepo) ListAll(ctx context.Context) ([]*domain.Member, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Member), args.Error(1)
}

func (m *MockMemberRepo) ListAllIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockMemberRepo) ListAdminIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkDelivered(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MockMessageRepo) ListOutboundByAuthorMember(ctx context.Context, memberID int64) ([]*domain.OutboundRow, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboundRow), args.Error(1)
}

func (m *MockMessageRepo) ListOutboundByAuthorUser(ctx context.Context, userID string) ([]*domain.OutboundRow, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboundRow), args.Error(1)
}

func (m *MockMessageRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Message, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) CountRecipients(ctx context.Context, messageID int64) (int, error) {
	args := m.Called(ctx, messageID)
	return args.Int(0), args.Error(1)
}

func (m *MockMessageRepo) Purge(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type MockRecipientRepo struct {
	mock.Mock
}

func (m *MockRecipientRepo) CreateBatch(ctx context.Context, messageID int64, memberIDs []int64) ([]*domain.MessageRecipient, error) {
	args := m.Called(ctx, messageID, memberIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.MessageRecipient), args.Error(1)
}

func (m *MockRecipientRepo) ListInbound(ctx context.Context, recipientMemberID int64) ([]*domain.InboundRow, error) {
	args := m.Called(ctx, recipientMemberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InboundRow), args.Error(1)
}

func (m *MockRecipientRepo) MarkRead(ctx context.Context, receiptID, recipientMemberID int64, at time.Time) (bool, error) {
	args := m.Called(ctx, receiptID, recipientMemberID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecipientRepo) MarkReadFromAuthor(ctx context.Context, recipientMemberID, authorMemberID int64, at time.Time) ([]int64, error) {
	args := m.Called(ctx, recipientMemberID, authorMemberID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRecipientRepo) MarkAllRead(ctx context.Context, recipientMemberID int64, at time.Time) ([]int64, error) {
	args := m.Called(ctx, recipientMemberID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events...)
}

// prefixCipher is a reversible stand-in for the AES encryptor.
type prefixCipher struct{}

func (prefixCipher) Encrypt(plain string) (string, error) { return "enc:" + plain, nil }

func (prefixCipher) Decrypt(enc string) (string, error) {
	if !strings.HasPrefix(enc, "enc:") {
		return "", errNotEncrypted
	}
	return strings.TrimPrefix(enc, "enc:"), nil
}

var errNotEncrypted = errors.New("not encrypted")

func ptr[T any](v T) *T { return &v }

func admin(memberID int64) domain.Principal {
	return domain.Principal{UserID: "admin-user", MemberID: ptr(memberID), IsAdmin: true}
}

func member(userID string, memberID int64) domain.Principal {
	return domain.Principal{UserID: userID, MemberID: ptr(memberID)}
}
