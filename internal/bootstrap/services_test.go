package bootstrap

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lootbay/marketplace-backend/internal/catalog"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db/dbtest"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/redis"
)

func testConfig() *config.Config {
	return &config.Config{
		FeatureFlags: config.FeatureFlagsConfig{LogNotifier: true},
		Security:     config.SecurityConfig{InventorySealKey: strings.Repeat("ab", 32)},
		Settlement:   config.SettlementConfig{MinReasonLength: 10, Currency: "USD"},
		Checkout:     config.CheckoutConfig{HoldDuration: 15 * time.Minute, MaxQuantity: 10},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "bootstrap-test", Output: io.Discard})
}

func TestNewNotifierHonorsLogFlag(t *testing.T) {
	notifier, closeFn, err := NewNotifier(context.Background(), testConfig(), testLogger())
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &notifications.LogNotifier{}, notifier)
}

func TestNewCatalogPicksBackend(t *testing.T) {
	cfg := testConfig()
	conn := dbtest.Open(t)

	reader, err := NewCatalog(cfg, conn)
	require.NoError(t, err)
	require.IsType(t, &catalog.GormReader{}, reader)

	cfg.Catalog.BaseURL = "http://catalog.internal"
	reader, err = NewCatalog(cfg, conn)
	require.NoError(t, err)
	require.IsType(t, &catalog.HTTPReader{}, reader)
}

func TestNewServicesWiresGraph(t *testing.T) {
	svc, err := NewServices(Params{
		Config: testConfig(),
		Logger: testLogger(),
		DB:     dbtest.Open(t),
		Redis:  &redis.Client{},
	})
	require.NoError(t, err)
	require.NotNil(t, svc.Checkout)
	require.NotNil(t, svc.Payments)
	require.NotNil(t, svc.Settlement)
	require.NotNil(t, svc.Disputes)
	require.NotNil(t, svc.Allocator)
	require.NotNil(t, svc.OutboxRepo)
}

func TestNewServicesRejectsBadSealKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security.InventorySealKey = "short"
	_, err := NewServices(Params{Config: cfg, Logger: testLogger(), DB: dbtest.Open(t), Redis: &redis.Client{}})
	require.ErrorContains(t, err, "sealer")
}

func TestNewServicesRequiresInfrastructure(t *testing.T) {
	_, err := NewServices(Params{Config: testConfig(), Logger: testLogger()})
	require.Error(t, err)
}
