package inventory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lootbay/marketplace-backend/internal/catalog"
	"github.com/lootbay/marketplace-backend/pkg/db/dbtest"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/security"
)

func TestAddUnitsSealsCodesAndChecksOwner(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	sellerID := uuid.New()
	listing := models.Listing{
		SellerID:     sellerID,
		Title:        "Skin bundle",
		PriceCents:   700,
		Currency:     enums.CurrencyUSD,
		Status:       enums.ListingStatusPublished,
		DeliveryMode: enums.DeliveryModeAuto,
	}
	require.NoError(t, client.DB().Create(&listing).Error)

	sealer, err := security.NewSealer("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	repo := NewRepository(client.DB())
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, catalog.NewGormReader(client.DB()), sealer, logg)
	require.NoError(t, err)

	_, err = svc.AddUnits(ctx, uuid.New(), listing.ID, AddUnitsInput{Codes: []string{"x"}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.AddUnits(ctx, sellerID, listing.ID, AddUnitsInput{Quantity: 2})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	n, err := svc.AddUnits(ctx, sellerID, listing.ID, AddUnitsInput{Codes: []string{"KEY-1", "KEY-2"}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	var stored []models.InventoryItem
	require.NoError(t, client.DB().Where("listing_id = ?", listing.ID).Find(&stored).Error)
	require.Len(t, stored, 2)
	for _, unit := range stored {
		require.NotNil(t, unit.SealedCode)
		require.NotContains(t, *unit.SealedCode, "KEY-")
	}

	allocator, err := NewAllocator(AllocatorParams{Repository: repo, Logger: logg})
	require.NoError(t, err)
	orderItemID := uuid.New()
	_, err = allocator.Reserve(ctx, nil, listing.ID, orderItemID, time.Minute)
	require.NoError(t, err)
	_, err = allocator.MarkDelivered(ctx, nil, orderItemID)
	require.NoError(t, err)

	codes, err := svc.DeliveredCodes(ctx, []uuid.UUID{orderItemID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Contains(t, []string{"KEY-1", "KEY-2"}, codes[orderItemID])
}
