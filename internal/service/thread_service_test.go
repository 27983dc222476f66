package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clubdesk/internal/domain"
	"clubdesk/internal/service"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func inbound(receiptID, messageID int64, author int64, at time.Time, body string, readAt *time.Time) *domain.InboundRow {
	return &domain.InboundRow{
		Receipt: domain.MessageRecipient{ID: receiptID, MessageID: messageID, CreatedAt: at, ReadAt: readAt},
		Message: domain.Message{ID: messageID, Body: "enc:" + body, CreatedAt: at, AuthorMemberID: ptr(author)},
	}
}

func outbound(messageID int64, author int64, at time.Time, body string, rcs ...domain.MessageRecipient) *domain.OutboundRow {
	return &domain.OutboundRow{
		Message:    domain.Message{ID: messageID, Body: "enc:" + body, CreatedAt: at, AuthorMemberID: ptr(author)},
		Recipients: rcs,
	}
}

func TestListMyThread(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesAndOrders", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		recipients.On("ListInbound", mock.Anything, int64(2)).Return([]*domain.InboundRow{
			inbound(10, 1, 1, t0, "first", nil),
			inbound(12, 3, 1, t0.Add(2*time.Minute), "third", nil),
		}, nil)
		messages.On("ListOutboundByAuthorUser", mock.Anything, "u2").Return([]*domain.OutboundRow{
			outbound(2, 2, t0.Add(time.Minute), "second", domain.MessageRecipient{ID: 11, RecipientMemberID: 1}),
		}, nil)

		entries, err := svc.ListMyThread(ctx, member("u2", 2))
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, []string{"first", "second", "third"}, bodies(entries))
		assert.Equal(t, domain.DirectionIn, entries[0].Direction)
		assert.True(t, entries[1].Mine())
		assert.False(t, entries[2].Mine())
		assert.Equal(t, int64(12), entries[2].ReceiptID)
	})

	t.Run("EqualTimestampsUseMessageID", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		recipients.On("ListInbound", mock.Anything, int64(2)).Return([]*domain.InboundRow{
			inbound(20, 9, 1, t0, "b", nil),
		}, nil)
		messages.On("ListOutboundByAuthorUser", mock.Anything, "u2").Return([]*domain.OutboundRow{
			outbound(4, 2, t0, "a"),
		}, nil)

		entries, err := svc.ListMyThread(ctx, member("u2", 2))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, bodies(entries))
	})

	t.Run("SelfAddressedMessageAppearsOnce", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		recipients.On("ListInbound", mock.Anything, int64(2)).Return([]*domain.InboundRow{
			inbound(30, 5, 2, t0, "note to self", nil),
		}, nil)
		messages.On("ListOutboundByAuthorUser", mock.Anything, "u2").Return([]*domain.OutboundRow{
			outbound(5, 2, t0, "note to self", domain.MessageRecipient{ID: 30, RecipientMemberID: 2}),
		}, nil)

		entries, err := svc.ListMyThread(ctx, member("u2", 2))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.DirectionOut, entries[0].Direction)
	})

	t.Run("Empty", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		recipients.On("ListInbound", mock.Anything, int64(2)).Return([]*domain.InboundRow{}, nil)
		messages.On("ListOutboundByAuthorUser", mock.Anything, "u2").Return([]*domain.OutboundRow{}, nil)

		entries, err := svc.ListMyThread(ctx, member("u2", 2))
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("UndecryptableBodyIsReturnedRaw", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		row := inbound(1, 1, 1, t0, "", nil)
		row.Message.Body = "legacy plaintext"
		recipients.On("ListInbound", mock.Anything, int64(2)).Return([]*domain.InboundRow{row}, nil)
		messages.On("ListOutboundByAuthorUser", mock.Anything, "u2").Return([]*domain.OutboundRow{}, nil)

		entries, err := svc.ListMyThread(ctx, member("u2", 2))
		require.NoError(t, err)
		assert.Equal(t, "legacy plaintext", entries[0].Body)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		boom := errors.New("connection refused")
		recipients.On("ListInbound", mock.Anything, int64(2)).Return(nil, boom)

		_, err := svc.ListMyThread(ctx, member("u2", 2))
		assert.ErrorIs(t, err, boom)
		messages.AssertNotCalled(t, "ListOutboundByAuthorUser", mock.Anything, mock.Anything)
	})

	t.Run("NoMemberProfile", func(t *testing.T) {
		svc := service.NewThreadService(new(MockMessageRepo), new(MockRecipientRepo), prefixCipher{}, nil)

		_, err := svc.ListMyThread(ctx, domain.Principal{UserID: "u9"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestListThreadWithMember(t *testing.T) {
	ctx := context.Background()
	readAt := t0.Add(time.Hour)

	t.Run("FiltersToCounterparty", func(t *testing.T) {
		messages := new(MockMessageRepo)
		recipients := new(MockRecipientRepo)
		svc := service.NewThreadService(messages, recipients, prefixCipher{}, nil)

		recipients.On("ListInbound", mock.Anything, int64(1)).Return([]*domain.InboundRow{
			inbound(100, 1, 2, t0, "from 2", nil),
			inbound(101, 2, 3, t0.Add(time.Minute), "from 3", nil),
		}, nil)
		messages.On("ListOutboundByAuthorMember", mock.Anything, int64(1)).Return([]*domain.OutboundRow{
			outbound(3, 1, t0.Add(2*time.Minute), "to 2 and 3",
				domain.MessageRecipient{ID: 200, RecipientMemberID: 2, ReadAt: &readAt},
				domain.MessageRecipient{ID: 201, RecipientMemberID: 3}),
			outbound(4, 1, t0.Add(3*time.Minute), "to 3 only",
				domain.MessageRecipient{ID: 202, RecipientMemberID: 3}),
		}, nil)

		entries, err := svc.ListThreadWithMember(ctx, admin(1), 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, []string{"from 2", "to 2 and 3"}, bodies(entries))
		assert.False(t, entries[0].Mine())
		assert.True(t, entries[1].Mine())
		assert.Equal(t, int64(200), entries[1].ReceiptID)
		assert.Equal(t, &readAt, entries[1].ReadAt)
	})

	t.Run("NotAdmin", func(t *testing.T) {
		svc := service.NewThreadService(new(MockMessageRepo), new(MockRecipientRepo), prefixCipher{}, nil)

		_, err := svc.ListThreadWithMember(ctx, member("u2", 2), 1)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("InvalidCounterparty", func(t *testing.T) {
		svc := service.NewThreadService(new(MockMessageRepo), new(MockRecipientRepo), prefixCipher{}, nil)

		_, err := svc.ListThreadWithMember(ctx, admin(1), 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func bodies(entries []domain.ThreadEntry) []string {
	res := make([]string, len(entries))
	for i, e := range entries {
		res[i] = e.Body
	}
	return res
}
