package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/internal/payments"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
)

const defaultMaxBodyBytes int64 = 1 << 20

// PaymentWebhookService applies provider confirmations.
type PaymentWebhookService interface {
	VerifySignature(signature string, body []byte) error
	HandleWebhook(ctx context.Context, raw []byte) (*payments.Ack, error)
}

// PaymentsWebhook accepts batched payment confirmations from the provider.
// Only store failures answer 5xx; the provider retries those and records
// that already committed are no-ops on the second pass.
func PaymentsWebhook(svc PaymentWebhookService, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := svc.VerifySignature(r.Header.Get(payments.SignatureHeader), payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ack, err := svc.HandleWebhook(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"processed": ack.Processed,
				"confirmed": ack.Confirmed,
				"failed":    ack.Failed,
				"ignored":   ack.Ignored,
				"rejected":  ack.Rejected,
			}), "payment webhook acknowledged")
		}
		responses.WriteSuccess(w, ack)
	}
}
