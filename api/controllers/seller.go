package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/api/validators"
	"github.com/lootbay/marketplace-backend/internal/inventory"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/settlement"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type manualDeliverer interface {
	DeliverManual(ctx context.Context, sellerID, orderID uuid.UUID, note string) (*settlement.Outcome, error)
}

type stockUploader interface {
	AddUnits(ctx context.Context, sellerID, listingID uuid.UUID, input inventory.AddUnitsInput) (int, error)
}

type sellerLedger interface {
	Balance(ctx context.Context, userID uuid.UUID, currency enums.Currency) (*ledger.Balance, error)
	Entries(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.EntryList, error)
	RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int64, currency enums.Currency) (*models.LedgerEntry, error)
}

type deliverRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

// SellerDeliver records the seller's hand-over of a MANUAL order.
func SellerDeliver(svc manualDeliverer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

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

		var payload deliverRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.DeliverManual(r.Context(), actor.UserID, orderID, validators.SanitizeString(payload.Note, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementOutcomeResponse(out))
	}
}

type addInventoryRequest struct {
	Codes    []string `json:"codes" validate:"omitempty,max=1000,dive,required,max=512"`
	Quantity int      `json:"quantity" validate:"omitempty,min=1,max=1000"`
}

// SellerAddInventory uploads stock for one of the seller's listings.
func SellerAddInventory(svc stockUploader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId", "listing")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		added, err := svc.AddUnits(r.Context(), actor.UserID, listingID, inventory.AddUnitsInput{
			Codes:    payload.Codes,
			Quantity: payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"listing_id": listingID,
			"added":      added,
		})
	}
}

// SellerBalance returns the seller's available and held funds.
func SellerBalance(svc sellerLedger, currency enums.Currency, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), actor.UserID, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// SellerLedger pages the seller's ledger postings.
func SellerLedger(svc sellerLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.Entries(r.Context(), actor.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := ledgerListResponse{Entries: make([]*ledgerEntryResponse, 0, len(list.Entries)), NextCursor: list.NextCursor}
		for i := range list.Entries {
			resp.Entries = append(resp.Entries, newLedgerEntryResponse(&list.Entries[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

type payoutRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

// SellerPayout withdraws available funds.
func SellerPayout(svc sellerLedger, currency enums.Currency, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.RequestPayout(r.Context(), actor.UserID, payload.AmountCents, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(entry))
	}
}
