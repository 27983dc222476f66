package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubdesk/internal/config"
	"clubdesk/internal/domain"
	"clubdesk/internal/httpserver"
	"clubdesk/internal/realtime"
	"clubdesk/internal/security"
	"clubdesk/internal/service"
	"clubdesk/internal/store/sqlite"
	"clubdesk/internal/ws"
)

type testServer struct {
	handler http.Handler
	tokens  *security.TokenService
	wsHub   *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	members := sqlite.NewMemberRepo(db)
	messages := sqlite.NewMessageRepo(db)
	recipients := sqlite.NewRecipientRepo(db)

	ctx := context.Background()
	for _, m := range []*domain.Member{
		{UserID: strPtr("coach"), FirstName: "Coach", Email: "coach@club.test", IsAdmin: true},
		{UserID: strPtr("ana"), FirstName: "Ana", Email: "ana@club.test"},
		{UserID: strPtr("ben"), FirstName: "Ben", Email: "ben@club.test"},
	} {
		require.NoError(t, members.Create(ctx, m))
	}

	enc, err := security.NewEncryptor([]byte("router-test"))
	require.NoError(t, err)
	tokens := security.NewTokenService("secret", time.Hour)
	hub := realtime.NewHub()

	threads := service.NewThreadService(messages, recipients, enc, nil)
	svc := httpserver.Services{
		Members:      service.NewMemberService(members),
		Threads:      threads,
		Dispatch:     service.NewDispatchService(members, messages, recipients, enc, hub, 0, nil),
		Conversation: service.NewConversationService(members, messages, recipients, threads, enc, nil),
		Reads:        service.NewReadService(recipients, hub, nil),
		Reconcile:    service.NewReconcileService(messages, nil),
	}
	cfg := &config.Config{
		CORSOrigins:    []string{"*"},
		SendRatePerSec: 0.01,
		SendBurst:      3,
		ReconcileGrace: time.Minute,
	}
	wsHub := ws.NewHub()
	return &testServer{
		handler: httpserver.NewRouter(cfg, svc, wsHub, hub, tokens, nil),
		tokens:  tokens,
		wsHub:   wsHub,
	}
}

func strPtr(s string) *string { return &s }

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := s.tokens.CreateForUser(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestRouterAuth(t *testing.T) {
	s := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/members", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("BadToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/members", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ListMembers", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/members", "ana", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		members := decode[[]domain.Member](t, rec)
		assert.Len(t, members, 3)
	})

	t.Run("ReconcileIsAdminOnly", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/messages/reconcile", "ana", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/admin/messages/reconcile?grace=0s", "coach", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/admin/messages/reconcile?grace=soon", "coach", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/admin/messages/reconcile?purge=maybe", "coach", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/admin/messages/reconcile?grace=0s&purge=true", "coach", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		report := decode[service.ReconcileReport](t, rec)
		assert.Empty(t, report.Purged)
		assert.Empty(t, report.Stalled)
	})
}

func TestRouterMessaging(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/messages", "coach", map[string]any{
		"subject":       "Hi",
		"body":          "Hello",
		"recipient_ids": []string{"2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[map[string]any](t, rec)
	assert.Equal(t, "Hello", sent["body"])
	assert.Equal(t, "delivered", sent["delivery_state"])

	t.Run("MemberThread", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/messages/thread", "ana", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decode[[]domain.ThreadEntry](t, rec)
		require.Len(t, entries, 1)
		assert.Equal(t, "Hello", entries[0].Body)
		assert.Equal(t, domain.DirectionIn, entries[0].Direction)
	})

	t.Run("AdminThread", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/messages/thread?member=2", "coach", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decode[[]domain.ThreadEntry](t, rec)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Mine())

		rec = s.do(t, http.MethodGet, "/api/messages/thread?member=x", "coach", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MemberCannotViewOtherThreads", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/messages/thread?member=3", "ana", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Conversations", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/messages/conversations", "ana", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		convs := decode[[]domain.ConversationSummary](t, rec)
		require.Len(t, convs, 1)
		assert.Equal(t, domain.StaffConversationKey, convs[0].Key)
		assert.Equal(t, 1, convs[0].Unread)

		rec = s.do(t, http.MethodGet, "/api/messages/conversations", "ben", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]domain.ConversationSummary](t, rec))
	})

	t.Run("MarkStaffConversationRead", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/messages/conversations/staff/read", "ana", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.ReadResult{Updated: 1}, decode[service.ReadResult](t, rec))

		rec = s.do(t, http.MethodGet, "/api/messages/conversations", "ana", nil)
		convs := decode[[]domain.ConversationSummary](t, rec)
		require.Len(t, convs, 1)
		assert.Zero(t, convs[0].Unread)
	})

	t.Run("ReplyAndAdminConversations", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/messages", "ana", map[string]any{"body": "Thanks", "to_staff": true})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = s.do(t, http.MethodGet, "/api/messages/conversations", "coach", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		convs := decode[[]domain.ConversationSummary](t, rec)
		require.Len(t, convs, 1)
		assert.Equal(t, int64(2), convs[0].CounterpartyID)
		assert.Equal(t, 1, convs[0].Unread)

		rec = s.do(t, http.MethodPost, "/api/messages/conversations/2/read", "coach", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decode[service.ReadResult](t, rec).Updated)

		rec = s.do(t, http.MethodPost, "/api/messages/conversations/abc/read", "coach", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MarkReceiptRead", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/messages/receipts/999/read", "ben", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.ReadResult{}, decode[service.ReadResult](t, rec))
	})
}

func TestRouterSendValidation(t *testing.T) {
	s := newTestServer(t)

	t.Run("BlankBody", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/messages", "coach", map[string]any{"body": "  ", "to_staff": true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		token, err := s.tokens.CreateForUser("coach")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MemberCannotBroadcast", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/messages", "ben", map[string]any{"body": "hey all", "is_broadcast": true})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("SendsAreThrottled", func(t *testing.T) {
		codes := make([]int, 0, 5)
		for range 5 {
			rec := s.do(t, http.MethodPost, "/api/messages", "ana", map[string]any{"body": "ping", "to_staff": true})
			codes = append(codes, rec.Code)
		}
		assert.Contains(t, codes, http.StatusTooManyRequests)
		assert.Equal(t, http.StatusCreated, codes[0])
	})
}

func TestWebSocketSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	token, err := s.tokens.CreateForUser("ana")
	require.NoError(t, err)

	t.Run("RejectsMissingToken", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.wsHub.Count(2) == 1 }, time.Second, 10*time.Millisecond)

	readFrame := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	rec := s.do(t, http.MethodPost, "/api/messages", "coach", map[string]any{"body": "Class moved", "recipient_ids": []string{"2"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	frame := readFrame()
	assert.Equal(t, "receipt_insert", frame["type"])
	receiptID := frame["receipt_id"]

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "open_thread"}))
	frame = readFrame()
	require.Equal(t, "thread", frame["type"])
	entries, ok := frame["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mark_read", "receipt_id": receiptID}))
	var sawUpdate, sawResult bool
	for !(sawUpdate && sawResult) {
		frame = readFrame()
		switch frame["type"] {
		case "receipt_update":
			sawUpdate = true
		case "read_result":
			sawResult = true
			assert.EqualValues(t, 1, frame["updated"])
		}
	}
}
