// Package bootstrap wires the domain services shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lootbay/marketplace-backend/internal/catalog"
	"github.com/lootbay/marketplace-backend/internal/checkout"
	"github.com/lootbay/marketplace-backend/internal/disputes"
	"github.com/lootbay/marketplace-backend/internal/inventory"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/internal/payments"
	"github.com/lootbay/marketplace-backend/internal/settlement"
	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/metrics"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/pubsub"
	"github.com/lootbay/marketplace-backend/pkg/redis"
	"github.com/lootbay/marketplace-backend/pkg/security"
)

// Services is the fully wired domain graph.
type Services struct {
	Outbox     *outbox.Writer
	OutboxRepo *outbox.Repository
	Allocator  *inventory.Allocator
	Inventory  *inventory.Service
	Orders     *orders.Service
	Ledger     *ledger.Service
	Payments   *payments.Service
	Checkout   *checkout.Service
	Disputes   *disputes.Service
	Settlement *settlement.Service
}

// Params carry the infrastructure the graph is built on.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Dispatcher *notifications.Dispatcher
	Registerer prometheus.Registerer
}

// NewNotifier publishes to Pub/Sub unless the log notifier flag is set. The
// returned func releases the Pub/Sub client.
func NewNotifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Notifier, func(), error) {
	if cfg.FeatureFlags.LogNotifier {
		return notifications.NewLogNotifier(logg), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	notifier, err := notifications.NewPubSubNotifier(client, client.NotificationTopic())
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("pubsub notifier: %w", err)
	}
	return notifier, func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}, nil
}

// NewCatalog reads listings over HTTP when a catalog URL is configured and from
// the local listings table otherwise.
func NewCatalog(cfg *config.Config, conn *db.Client) (catalog.Reader, error) {
	if cfg.Catalog.BaseURL != "" {
		return catalog.NewHTTPReader(cfg.Catalog)
	}
	return catalog.NewGormReader(conn.DB()), nil
}

// NewServices builds every domain service in dependency order.
func NewServices(p Params) (*Services, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil || p.Redis == nil {
		return nil, fmt.Errorf("config, logger, db and redis are required")
	}
	cfg, logg := p.Config, p.Logger
	reg := p.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	dispatcher := p.Dispatcher
	if dispatcher == nil {
		dispatcher = notifications.NewDispatcher(notifications.NewLogNotifier(logg), logg)
	}

	conn := p.DB.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewWriter(outboxRepo, logg)

	reader, err := NewCatalog(cfg, p.DB)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	sealer, err := security.NewSealer(cfg.Security.InventorySealKey)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}

	inventoryRepo := inventory.NewRepository(conn)
	allocator, err := inventory.NewAllocator(inventory.AllocatorParams{Repository: inventoryRepo, Logger: logg})
	if err != nil {
		return nil, fmt.Errorf("allocator: %w", err)
	}
	inventorySvc, err := inventory.NewService(inventoryRepo, reader, sealer, logg)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		Outbox:     outboxSvc,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(conn),
		Tx:         p.DB,
		Outbox:     outboxSvc,
		Notifier:   dispatcher,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	provider, err := payments.NewProvider(cfg.Payments)
	if err != nil {
		return nil, fmt.Errorf("payment provider: %w", err)
	}
	guard, err := payments.NewTxGuard(p.Redis, cfg.Webhook.GuardTTL, "payments")
	if err != nil {
		return nil, fmt.Errorf("txid guard: %w", err)
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repository: payments.NewRepository(conn),
		Tx:         p.DB,
		Provider:   provider,
		Orders:     ordersSvc,
		Inventory:  allocator,
		Ledger:     ledgerSvc,
		Outbox:     outboxSvc,
		Notifier:   dispatcher,
		Guard:      guard,
		Metrics:    metrics.NewWebhookMetrics(reg),
		Logger:     logg,
		Secret:     cfg.Webhook.Secret,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:           p.DB,
		Catalog:      reader,
		Orders:       ordersSvc,
		Inventory:    allocator,
		Payments:     paymentsSvc,
		Outbox:       outboxSvc,
		Metrics:      metrics.NewCheckoutMetrics(reg),
		Logger:       logg,
		HoldDuration: cfg.Checkout.HoldDuration,
		MaxQuantity:  cfg.Checkout.MaxQuantity,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	disputesSvc, err := disputes.NewService(disputes.ServiceParams{
		Repository:      disputes.NewRepository(conn),
		Tx:              p.DB,
		Orders:          ordersSvc,
		Ledger:          ledgerSvc,
		Outbox:          outboxSvc,
		Notifier:        dispatcher,
		Logger:          logg,
		MinReasonLength: cfg.Settlement.MinReasonLength,
	})
	if err != nil {
		return nil, fmt.Errorf("disputes: %w", err)
	}

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		Tx:              p.DB,
		Orders:          ordersSvc,
		Ledger:          ledgerSvc,
		Disputes:        disputesSvc,
		Inventory:       allocator,
		Notifier:        dispatcher,
		Logger:          logg,
		MinReasonLength: cfg.Settlement.MinReasonLength,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement: %w", err)
	}

	return &Services{
		Outbox:     outboxSvc,
		OutboxRepo: outboxRepo,
		Allocator:  allocator,
		Inventory:  inventorySvc,
		Orders:     ordersSvc,
		Ledger:     ledgerSvc,
		Payments:   paymentsSvc,
		Checkout:   checkoutSvc,
		Disputes:   disputesSvc,
		Settlement: settlementSvc,
	}, nil
}
