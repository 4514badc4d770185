package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lootbay/marketplace-backend/internal/payments"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

type fakePaymentWebhookService struct {
	secret string
	calls  int
	ack    *payments.Ack
	err    error
}

func (f *fakePaymentWebhookService) VerifySignature(signature string, body []byte) error {
	if !payments.VerifySignature(f.secret, signature, body) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

func (f *fakePaymentWebhookService) HandleWebhook(_ context.Context, _ []byte) (*payments.Ack, error) {
	f.calls++
	return f.ack, f.err
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestPaymentsWebhookAcknowledgesSignedBatch(t *testing.T) {
	body := []byte(`[{"txid":"tx-1","timestamp":1700000000}]`)
	svc := &fakePaymentWebhookService{secret: "whsec", ack: &payments.Ack{Processed: 1, Confirmed: 1}}
	handler := PaymentsWebhook(svc, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(payments.SignatureHeader, payments.Sign("whsec", body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data payments.Ack `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Confirmed != 1 || envelope.Data.Processed != 1 {
		t.Fatalf("unexpected ack %+v", envelope.Data)
	}
}

func TestPaymentsWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakePaymentWebhookService{secret: "whsec", ack: &payments.Ack{}}
	handler := PaymentsWebhook(svc, 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`[]`))
	req.Header.Set(payments.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not run on a bad signature")
	}
}

func TestPaymentsWebhookMapsMalformedTo400(t *testing.T) {
	svc := &fakePaymentWebhookService{err: pkgerrors.New(pkgerrors.CodeMalformed, "webhook body could not be parsed")}
	handler := PaymentsWebhook(svc, 0, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`{{`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeMalformed) {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeMalformed, code)
	}
}

func TestPaymentsWebhookStoreFailureAsksForRetry(t *testing.T) {
	svc := &fakePaymentWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "webhook processing failed")}
	handler := PaymentsWebhook(svc, 0, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`[]`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPaymentsWebhookEnforcesBodyLimit(t *testing.T) {
	svc := &fakePaymentWebhookService{ack: &payments.Ack{}}
	handler := PaymentsWebhook(svc, 8, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`[{"txid":"too-long"}]`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("oversized body must not reach the service")
	}
}
