package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db/dbtest"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

func TestGormReader(t *testing.T) {
	client := dbtest.Open(t)
	listing := models.Listing{
		SellerID:   uuid.New(),
		Title:      "Rare mount",
		PriceCents: 1299,
		Currency:   enums.CurrencyUSD,
		Status:     enums.ListingStatusPublished,
	}
	require.NoError(t, client.DB().Create(&listing).Error)

	reader := NewGormReader(client.DB())
	got, err := reader.Listing(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Equal(t, "Rare mount", got.Title)
	require.Equal(t, enums.DeliveryModeAuto, got.DeliveryMode)

	_, err = reader.Listing(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHTTPReader(t *testing.T) {
	listingID := uuid.New()
	sellerID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listings/"+listingID.String() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"` + listingID.String() + `","sellerId":"` + sellerID.String() +
			`","title":"Account","priceCents":500,"currency":"USD","status":"PUBLISHED","deliveryMode":"MANUAL"}}`))
	}))
	defer srv.Close()

	reader, err := NewHTTPReader(config.CatalogConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := reader.Listing(context.Background(), listingID)
	require.NoError(t, err)
	require.Equal(t, sellerID, got.SellerID)
	require.Equal(t, enums.DeliveryModeManual, got.DeliveryMode)
	require.Equal(t, enums.ListingStatusPublished, got.Status)

	_, err = reader.Listing(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
