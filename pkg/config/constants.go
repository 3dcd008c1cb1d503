package config

// EnvPrefix is handed to envconfig; every field carries its full variable
// name in the struct tag so the prefix only matters for untagged fields.
const EnvPrefix = "VINLOTTO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "VINLOTTO_APP_ENV"
	EnvPort     = "VINLOTTO_APP_PORT"
	EnvLogLevel = "VINLOTTO_LOG_LEVEL"

	EnvDBDSN  = "VINLOTTO_DB_DSN"
	EnvDBHost = "VINLOTTO_DB_HOST"
	EnvDBUser = "VINLOTTO_DB_USER"
	EnvDBName = "VINLOTTO_DB_NAME"

	EnvRedisURL = "VINLOTTO_REDIS_URL"

	EnvGCPProjectID            = "VINLOTTO_GCP_PROJECT_ID"
	EnvPubSubOrderEventsSub    = "VINLOTTO_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"
	EnvStorefrontShopDomain    = "VINLOTTO_STOREFRONT_SHOP_DOMAIN"
	EnvStorefrontAccessToken   = "VINLOTTO_STOREFRONT_ACCESS_TOKEN"
	EnvAllocationRepick        = "VINLOTTO_ALLOCATION_REPICK_ON_INCREASE"
	EnvAllocationGenericLabels = "VINLOTTO_ALLOCATION_GENERIC_SHIPPING_LABELS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
