package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/api/validators"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/internal/settlement"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type orderReader interface {
	Get(ctx context.Context, viewer orders.Actor, orderID uuid.UUID) (*models.Order, error)
	Events(ctx context.Context, viewer orders.Actor, orderID uuid.UUID) ([]models.OrderEvent, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*orders.OrderList, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*orders.OrderList, error)
}

type deliveredCodeReader interface {
	DeliveredCodes(ctx context.Context, orderItemIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

type receiptConfirmer interface {
	ConfirmReceipt(ctx context.Context, buyerID, orderID uuid.UUID) (*settlement.Outcome, error)
}

type disputeOpener interface {
	Open(ctx context.Context, actor orders.Actor, orderID uuid.UUID, reason string) (*models.Dispute, error)
}

type orderDetailResponse struct {
	Order  *orderResponse       `json:"order"`
	Events []orderEventResponse `json:"events"`
}

type settlementOutcomeResponse struct {
	Order      *orderResponse     `json:"order"`
	Settlement *ledger.Settlement `json:"settlement,omitempty"`
	Dispute    *disputeResponse   `json:"dispute,omitempty"`
}

func newSettlementOutcomeResponse(out *settlement.Outcome) settlementOutcomeResponse {
	if out == nil {
		return settlementOutcomeResponse{}
	}
	return settlementOutcomeResponse{
		Order:      newOrderResponse(out.Order, nil),
		Settlement: out.Settlement,
		Dispute:    newDisputeResponse(out.Dispute),
	}
}

// OrdersList pages the caller's orders. Sellers see what they sold, everyone
// else what they bought.
func OrdersList(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		var list *orders.OrderList
		if actor.Role == enums.RoleSeller {
			list, err = svc.ListForSeller(r.Context(), actor.UserID, params)
		} else {
			list, err = svc.ListForBuyer(r.Context(), actor.UserID, params)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := orderListResponse{Orders: make([]*orderResponse, 0, len(list.Orders)), NextCursor: list.NextCursor}
		for i := range list.Orders {
			resp.Orders = append(resp.Orders, newOrderResponse(&list.Orders[i], nil))
		}
		responses.WriteSuccess(w, resp)
	}
}

// OrderDetail returns an order and its transition log. The buyer also sees
// the codes of delivered units.
func OrderDetail(svc orderReader, codes deliveredCodeReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.Events(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var unitCodes map[uuid.UUID]string
		if codes != nil && actor.UserID == order.BuyerID && revealsCodes(order.Status) {
			ids := make([]uuid.UUID, 0, len(order.Items))
			for _, item := range order.Items {
				ids = append(ids, item.ID)
			}
			unitCodes, err = codes.DeliveredCodes(r.Context(), ids)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		responses.WriteSuccess(w, orderDetailResponse{
			Order:  newOrderResponse(order, unitCodes),
			Events: newOrderEventResponses(events),
		})
	}
}

func revealsCodes(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusDelivered, enums.OrderStatusCompleted, enums.OrderStatusDisputed:
		return true
	}
	return false
}

// OrderConfirm lets the buyer accept delivery, which completes the order and
// releases the seller's funds.
func OrderConfirm(svc receiptConfirmer, logg *logger.Logger) http.HandlerFunc {
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

		out, err := svc.ConfirmReceipt(r.Context(), actor.UserID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementOutcomeResponse(out))
	}
}

type openDisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// OrderOpenDispute opens a dispute on a delivered order.
func OrderOpenDispute(svc disputeOpener, logg *logger.Logger) http.HandlerFunc {
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
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload openDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Open(r.Context(), actor, orderID, validators.SanitizeString(payload.Reason, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newDisputeResponse(dispute))
	}
}
