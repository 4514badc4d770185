package controllers

import (
	"net/http"

	"github.com/lootbay/marketplace-backend/api/middleware"
	"github.com/lootbay/marketplace-backend/internal/orders"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

// ActorFromRequest builds the order actor from the authenticated context.
func ActorFromRequest(r *http.Request) (orders.Actor, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	if err := id.Validate(); err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return orders.Actor{UserID: id.UserID, Role: id.Role}, nil
}
