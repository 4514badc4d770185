package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type holdReclaimer interface {
	ReclaimExpired(ctx context.Context, tx *gorm.DB, limit int) (int64, error)
}

type staleOrderReader interface {
	StaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Releasable(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type paymentExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type autoReleaser interface {
	AutoRelease(ctx context.Context, orderID uuid.UUID) (bool, error)
}
