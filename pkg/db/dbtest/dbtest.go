// Package dbtest opens throwaway sqlite databases migrated with every model.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
)

// Open returns a client over a private in-memory database. The pool is pinned
// to one connection so concurrent callers serialize the way row locks would
// serialize them on Postgres; code under test must run every statement of a
// transaction on the tx handle.
func Open(t testing.TB) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db.NewFromGorm(conn)
}

// SeedListing inserts a PUBLISHED listing owned by sellerID with units
// AVAILABLE inventory items.
func SeedListing(t testing.TB, client *db.Client, sellerID uuid.UUID, priceCents int64, mode enums.DeliveryMode, units int) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		SellerID:     sellerID,
		Title:        "Level 80 account",
		PriceCents:   priceCents,
		Currency:     enums.CurrencyUSD,
		Status:       enums.ListingStatusPublished,
		DeliveryMode: mode,
	}
	if err := client.DB().Create(listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	for i := 0; i < units; i++ {
		unit := &models.InventoryItem{ListingID: listing.ID, Status: enums.InventoryStatusAvailable}
		if err := client.DB().Create(unit).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}
	return listing
}
