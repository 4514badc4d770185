package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"order_id": "o-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"order_id":"o-1"}}`, w.Body.String())
}

func TestWriteSuccessUnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, string(pkgerrors.CodeInternal), decodeError(t, w).Code)
}

func TestWriteErrorKeepsValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"quantity": "must be at least 1"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	got := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeValidation), got.Code)
	require.Equal(t, map[string]any{"quantity": "must be at least 1"}, got.Details)
}

func TestWriteErrorStatusAndMessage(t *testing.T) {
	cases := []struct {
		code    pkgerrors.Code
		status  int
		message string
		want    string
	}{
		{pkgerrors.CodeOutOfStock, http.StatusConflict, "listing sold out", "listing sold out"},
		{pkgerrors.CodeConflict, http.StatusConflict, "dispute already open", "dispute already open"},
		{pkgerrors.CodeNotFound, http.StatusNotFound, "order not found", "order not found"},
		{pkgerrors.CodeInvalidState, http.StatusUnprocessableEntity, "dispute already resolved", "dispute already resolved"},
		{pkgerrors.CodeUnauthorized, http.StatusUnauthorized, "missing credentials", "missing credentials"},
		{pkgerrors.CodeForbidden, http.StatusForbidden, "role required", "role required"},
		{pkgerrors.CodeMalformed, http.StatusBadRequest, "webhook body could not be parsed", "webhook body could not be parsed"},
		{pkgerrors.CodePaymentFailed, http.StatusBadGateway, "provider said 500", "payment could not be initiated"},
		{pkgerrors.CodeDependency, http.StatusServiceUnavailable, "redis: i/o timeout", "dependency unavailable"},
		{pkgerrors.CodeInternal, http.StatusInternalServerError, "nil map write", "internal server error"},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, pkgerrors.New(tc.code, tc.message))
			require.Equal(t, tc.status, w.Code)
			require.Equal(t, tc.want, decodeError(t, w).Message)
		})
	}
}

func TestWriteErrorHidesUntypedCauses(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	got := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeInternal), got.Code)
	require.Equal(t, "internal server error", got.Message)
	require.Nil(t, got.Details)
}

func TestWriteErrorLogLevels(t *testing.T) {
	cases := map[string]struct {
		err   error
		level string
	}{
		"out of stock": {pkgerrors.New(pkgerrors.CodeOutOfStock, "listing sold out"), "info"},
		"not found":    {pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), "warn"},
		"wrapped internal": {
			fmt.Errorf("settle: %w", pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "ledger write")),
			"error",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &buf, Format: "json"})
			WriteError(context.Background(), logg, httptest.NewRecorder(), tc.err)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
			require.Equal(t, tc.level, entry["level"])
		})
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	ctx := WithRequestID(context.Background(), "req-42")
	WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))

	require.Equal(t, "req-42", decodeError(t, w).RequestID)
}
