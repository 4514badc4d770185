package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/api/validators"
	"github.com/lootbay/marketplace-backend/internal/disputes"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type disputeAdmin interface {
	Resolve(ctx context.Context, actor orders.Actor, disputeID uuid.UUID, action enums.DisputeAction, reason string) (*disputes.Resolution, error)
	ListOpen(ctx context.Context, params pagination.Params) (*disputes.DisputeList, error)
}

type resolveDisputeRequest struct {
	Action string `json:"action" validate:"required,oneof=release refund"`
	Reason string `json:"reason" validate:"required,max=2000"`
}

type resolutionResponse struct {
	Dispute    *disputeResponse   `json:"dispute"`
	Settlement *ledger.Settlement `json:"settlement"`
}

// AdminResolveDispute settles an open dispute for the seller or the buyer.
func AdminResolveDispute(svc disputeAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		actor, err := ActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disputeID, err := validators.ParseUUIDParam(r, "disputeId", "dispute")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Resolve(r.Context(), actor, disputeID, enums.DisputeAction(payload.Action), validators.SanitizeString(payload.Reason, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolutionResponse{
			Dispute:    newDisputeResponse(result.Dispute),
			Settlement: result.Settlement,
		})
	}
}

// AdminListDisputes pages the open dispute queue.
func AdminListDisputes(svc disputeAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOpen(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := disputeListResponse{Disputes: make([]*disputeResponse, 0, len(list.Disputes)), NextCursor: list.NextCursor}
		for i := range list.Disputes {
			resp.Disputes = append(resp.Disputes, newDisputeResponse(&list.Disputes[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
