package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Storefront   StorefrontConfig
	Allocation   AllocationConfig
	Cron         CronConfig
	Eventing     EventingConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VINLOTTO_APP_ENV" required:"true"`
	Port         string `envconfig:"VINLOTTO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VINLOTTO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VINLOTTO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"VINLOTTO_SERVICE_KIND" default:"worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"VINLOTTO_DB_DSN"`
	Driver string `envconfig:"VINLOTTO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VINLOTTO_DB_HOST"`
	LegacyPort     int    `envconfig:"VINLOTTO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VINLOTTO_DB_USER"`
	LegacyPassword string `envconfig:"VINLOTTO_DB_PASSWORD"`
	LegacyName     string `envconfig:"VINLOTTO_DB_NAME"`
	LegacySSLMode  string `envconfig:"VINLOTTO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VINLOTTO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VINLOTTO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VINLOTTO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VINLOTTO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VINLOTTO_REDIS_URL"`
	Address      string        `envconfig:"VINLOTTO_REDIS_ADDR"`
	Password     string        `envconfig:"VINLOTTO_REDIS_PASSWORD"`
	DB           int           `envconfig:"VINLOTTO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VINLOTTO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VINLOTTO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VINLOTTO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VINLOTTO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VINLOTTO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VINLOTTO_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"VINLOTTO_PUBSUB_ORDER_EVENTS_TOPIC" default:"vl-order-events"`
	OrderEventsSubscription string `envconfig:"VINLOTTO_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"`
	MaxOutstandingMessages  int    `envconfig:"VINLOTTO_PUBSUB_MAX_OUTSTANDING" default:"10"`
}

// StorefrontConfig points the GraphQL client at a single shop.
type StorefrontConfig struct {
	ShopDomain  string        `envconfig:"VINLOTTO_STOREFRONT_SHOP_DOMAIN"`
	AccessToken string        `envconfig:"VINLOTTO_STOREFRONT_ACCESS_TOKEN"`
	APIVersion  string        `envconfig:"VINLOTTO_STOREFRONT_API_VERSION" default:"2024-10"`
	Timeout     time.Duration `envconfig:"VINLOTTO_STOREFRONT_TIMEOUT" default:"15s"`
	StoreID     string        `envconfig:"VINLOTTO_STOREFRONT_STORE_ID"`
	LocationID  string        `envconfig:"VINLOTTO_STOREFRONT_LOCATION_ID"`
}

// Endpoint returns the admin GraphQL URL for the configured shop.
func (s StorefrontConfig) Endpoint() string {
	domain := strings.TrimSuffix(strings.TrimSpace(s.ShopDomain), "/")
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", domain, s.APIVersion)
}

type AllocationConfig struct {
	RepickOnIncrease      bool     `envconfig:"VINLOTTO_ALLOCATION_REPICK_ON_INCREASE" default:"true"`
	GenericShippingLabels []string `envconfig:"VINLOTTO_ALLOCATION_GENERIC_SHIPPING_LABELS" default:"Shipping"`
	DiversityAttempts     int      `envconfig:"VINLOTTO_ALLOCATION_DIVERSITY_ATTEMPTS" default:"5"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"VINLOTTO_CRON_INTERVAL" default:"1h"`
	OfferArchiveGrace time.Duration `envconfig:"VINLOTTO_CRON_OFFER_ARCHIVE_GRACE" default:"72h"`
	LockTTL           time.Duration `envconfig:"VINLOTTO_CRON_LOCK_TTL" default:"55m"`
}

type EventingConfig struct {
	DeliveryIdempotencyTTL time.Duration `envconfig:"VINLOTTO_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VINLOTTO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
