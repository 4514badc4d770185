package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/internal/catalog"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
)

const maxUnitsPerUpload = 500

// Sealer protects inventory codes at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Service covers seller-facing stock management.
type Service struct {
	repo    Repository
	catalog catalog.Reader
	sealer  Sealer
	logg    *logger.Logger
}

// AddUnitsInput carries a seller upload. AUTO listings need one code per unit;
// MANUAL listings may upload a bare quantity.
type AddUnitsInput struct {
	Codes    []string
	Quantity int
}

// NewService wires the stock management dependencies.
func NewService(repo Repository, reader catalog.Reader, sealer Sealer, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if reader == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("sealer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, catalog: reader, sealer: sealer, logg: logg}, nil
}

// AddUnits creates AVAILABLE units for a listing owned by sellerID.
func (s *Service) AddUnits(ctx context.Context, sellerID, listingID uuid.UUID, input AddUnitsInput) (int, error) {
	listing, err := s.catalog.Listing(ctx, listingID)
	if err != nil {
		return 0, err
	}
	if listing.SellerID != sellerID {
		return 0, pkgerrors.New(pkgerrors.CodeForbidden, "listing belongs to another seller")
	}
	if listing.Status == enums.ListingStatusArchived {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidState, "listing is archived")
	}

	units, err := s.buildUnits(listing, input)
	if err != nil {
		return 0, err
	}
	if err := s.repo.Create(ctx, units); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory units")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"listing_id": listingID.String(), "units": len(units)})
	s.logg.Info(logCtx, "inventory.units_added")
	return len(units), nil
}

func (s *Service) buildUnits(listing *models.Listing, input AddUnitsInput) ([]models.InventoryItem, error) {
	count := len(input.Codes)
	if count == 0 {
		if listing.DeliveryMode == enums.DeliveryModeAuto {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "codes required for automatic delivery")
		}
		count = input.Quantity
	}
	if count <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one unit required")
	}
	if count > maxUnitsPerUpload {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d units per upload", maxUnitsPerUpload))
	}

	units := make([]models.InventoryItem, 0, count)
	for i := 0; i < count; i++ {
		unit := models.InventoryItem{
			ListingID: listing.ID,
			Status:    enums.InventoryStatusAvailable,
		}
		if i < len(input.Codes) {
			code := strings.TrimSpace(input.Codes[i])
			if code == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("code %d is empty", i))
			}
			sealed, err := s.sealer.Seal(code)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal inventory code")
			}
			unit.SealedCode = &sealed
		}
		units = append(units, unit)
	}
	return units, nil
}

// DeliveredCodes opens the codes of the delivered units held by orderItemIDs,
// keyed by order item. Units without a code are skipped.
func (s *Service) DeliveredCodes(ctx context.Context, orderItemIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	codes := make(map[uuid.UUID]string, len(orderItemIDs))
	for _, id := range orderItemIDs {
		unit, err := s.repo.FindByOrderItem(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivered unit")
		}
		if unit == nil || unit.Status != enums.InventoryStatusDelivered || unit.SealedCode == nil {
			continue
		}
		code, err := s.sealer.Open(*unit.SealedCode)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open inventory code")
		}
		codes[id] = code
	}
	return codes, nil
}
