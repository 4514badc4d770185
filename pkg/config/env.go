package config

const (
	EnvPrefix = "LOOTBAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "LOOTBAY_APP_ENV"
	EnvPort     = "LOOTBAY_APP_PORT"
	EnvLogLevel = "LOOTBAY_LOG_LEVEL"

	EnvDBDSN  = "LOOTBAY_DB_DSN"
	EnvDBHost = "LOOTBAY_DB_HOST"
	EnvDBUser = "LOOTBAY_DB_USER"
	EnvDBName = "LOOTBAY_DB_NAME"

	EnvRedisURL = "LOOTBAY_REDIS_URL"

	EnvJWTSecret  = "LOOTBAY_JWT_SECRET"
	EnvJWTIssuer  = "LOOTBAY_JWT_ISSUER"
	EnvJWTExpMins = "LOOTBAY_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "LOOTBAY_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "LOOTBAY_PUBSUB_ORDERS_TOPIC"

	EnvCheckoutHoldDuration  = "LOOTBAY_CHECKOUT_HOLD_DURATION"
	EnvCheckoutPaymentWindow = "LOOTBAY_CHECKOUT_PAYMENT_WINDOW"

	EnvMinReasonLength    = "LOOTBAY_SETTLEMENT_MIN_REASON_LENGTH"
	EnvSettlementCurrency = "LOOTBAY_SETTLEMENT_CURRENCY"
	EnvOutboxBatchSize    = "LOOTBAY_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxMaxAttempts  = "LOOTBAY_OUTBOX_MAX_ATTEMPTS"

	EnvInventorySealKey = "LOOTBAY_INVENTORY_SEAL_KEY"
	EnvWebhookSecret    = "LOOTBAY_WEBHOOK_SECRET"
)
