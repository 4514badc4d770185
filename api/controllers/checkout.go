package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/api/validators"
	checkoutsvc "github.com/lootbay/marketplace-backend/internal/checkout"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
)

type checkoutService interface {
	Checkout(ctx context.Context, buyerID uuid.UUID, input checkoutsvc.CheckoutInput) (*checkoutsvc.Result, error)
}

type checkoutRequest struct {
	ListingID uuid.UUID `json:"listingId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type checkoutResponse struct {
	Order   *orderResponse   `json:"order"`
	Payment *paymentResponse `json:"payment"`
}

// Checkout reserves units for the buyer and opens the provider payment.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), actor.UserID, checkoutsvc.CheckoutInput{
			ListingID: payload.ListingID,
			Quantity:  payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order:   newOrderResponse(result.Order, nil),
			Payment: newPaymentResponse(result.Payment),
		})
	}
}
