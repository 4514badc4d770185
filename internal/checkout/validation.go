package checkout

import (
	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

// ValidateListing ensures buyerID may purchase listing.
func ValidateListing(listing *models.Listing, buyerID uuid.UUID) error {
	if listing == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	if listing.Status != enums.ListingStatusPublished {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "listing is not published")
	}
	if listing.SellerID == buyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot buy your own listing")
	}
	if listing.PriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "listing has no price")
	}
	return nil
}

// ValidateQuantity enforces 1 <= quantity <= max. A non-positive max disables
// the upper bound.
func ValidateQuantity(quantity, max int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if max > 0 && quantity > max {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds per-order limit").
			WithDetails(map[string]any{"max_quantity": max})
	}
	return nil
}
