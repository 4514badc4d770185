package controllers

import (
	"context"
	"net/http"

	"github.com/lootbay/marketplace-backend/api/responses"
	"github.com/lootbay/marketplace-backend/api/validators"
	"github.com/lootbay/marketplace-backend/internal/payments"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type rejectionReader interface {
	Rejections(ctx context.Context, params pagination.Params) (*payments.RejectionList, error)
}

// AdminWebhookRejections pages webhook deliveries that could not be applied.
func AdminWebhookRejections(svc rejectionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.Rejections(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := rejectionListResponse{Rejections: make([]rejectionResponse, 0, len(list.Rejections)), NextCursor: list.NextCursor}
		for _, row := range list.Rejections {
			resp.Rejections = append(resp.Rejections, rejectionResponse{
				ID:        row.ID,
				Provider:  row.Provider,
				Reason:    row.Reason,
				Payload:   row.Payload,
				CreatedAt: row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
