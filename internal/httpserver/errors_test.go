package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/service"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"InvalidInput", fmt.Errorf("%w: body", domain.ErrInvalidInput), http.StatusBadRequest},
		{"Unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"NoMemberProfile", domain.ErrNoMemberProfile, http.StatusForbidden},
		{"NotFound", domain.ErrNotFound, http.StatusNotFound},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), zap.NewNop(), tc.err)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	t.Run("PartialDeliveryIsAnError", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := &service.PartialDeliveryError{MessageID: 7, Delivered: 2, Intended: 5, Err: errors.New("batch failed")}
		writeError(rec, httptest.NewRequest(http.MethodPost, "/api/messages", nil), zap.NewNop(), err)

		assert.GreaterOrEqual(t, rec.Code, 400)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, 7, body["message_id"])
		assert.EqualValues(t, 2, body["delivered"])
		assert.EqualValues(t, 5, body["intended"])
	})
}
