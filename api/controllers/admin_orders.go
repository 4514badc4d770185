package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/api/validators"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/internal/settlement"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
)

type adminSettler interface {
	Release(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*settlement.Outcome, error)
	Refund(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*settlement.Outcome, error)
}

type adminSettleRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type settleFunc func(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*settlement.Outcome, error)

// AdminReleaseOrder pays the seller's held funds out and completes the order.
func AdminReleaseOrder(svc adminSettler, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("settlement service unavailable", logg)
	}
	return adminSettle(svc.Release, logg)
}

// AdminRefundOrder returns the held funds to the buyer.
func AdminRefundOrder(svc adminSettler, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("settlement service unavailable", logg)
	}
	return adminSettle(svc.Refund, logg)
}

func adminSettle(settle settleFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adminSettleRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		out, err := settle(r.Context(), actor, orderID, validators.SanitizeString(payload.Reason, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementOutcomeResponse(out))
	}
}

func unavailable(msg string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, msg))
	}
}
