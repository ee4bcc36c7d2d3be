package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Gateway      GatewayConfig
	Payments     PaymentsConfig
	Cart         CartConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password Secret `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     Secret        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            Secret `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
	// Leeway absorbs clock skew with the identity service.
	Leeway time.Duration `envconfig:"STOREFRONT_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// PricingConfig holds the tenant constants used by the cart summary.
type PricingConfig struct {
	ShippingFee           decimal.Decimal `envconfig:"STOREFRONT_PRICING_SHIPPING_FEE" default:"25000"`
	FreeShippingThreshold decimal.Decimal `envconfig:"STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD" default:"5000000"`
	TaxRate               decimal.Decimal `envconfig:"STOREFRONT_PRICING_TAX_RATE" default:"0.10"`
	Currency              string          `envconfig:"STOREFRONT_PRICING_CURRENCY" default:"VND"`
}

// Validate rejects negative tenant constants.
func (p PricingConfig) Validate() error {
	if p.ShippingFee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingShippingFee)
	}
	if p.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingFreeShippingThreshold)
	}
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingTaxRate)
	}
	return nil
}

// GatewayConfig describes the VNPay merchant integration. Required fields are
// checked by Validate when the payment services are constructed, so binaries
// that never touch payments can boot without them.
type GatewayConfig struct {
	Version        string        `envconfig:"STOREFRONT_VNPAY_VERSION" default:"2.1.0"`
	Command        string        `envconfig:"STOREFRONT_VNPAY_COMMAND" default:"pay"`
	MerchantCode   string        `envconfig:"STOREFRONT_VNPAY_TMN_CODE"`
	HashSecret     Secret        `envconfig:"STOREFRONT_VNPAY_HASH_SECRET"`
	BaseURL        string        `envconfig:"STOREFRONT_VNPAY_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL      string        `envconfig:"STOREFRONT_VNPAY_RETURN_URL"`
	Locale         string        `envconfig:"STOREFRONT_VNPAY_LOCALE" default:"vn"`
	CurrCode       string        `envconfig:"STOREFRONT_VNPAY_CURR_CODE" default:"VND"`
	OrderType      string        `envconfig:"STOREFRONT_VNPAY_ORDER_TYPE" default:"other"`
	Timezone       string        `envconfig:"STOREFRONT_VNPAY_TIMEZONE" default:"Asia/Ho_Chi_Minh"`
	SuccessCode    string        `envconfig:"STOREFRONT_VNPAY_SUCCESS_CODE" default:"00"`
	InFlightStatus string        `envconfig:"STOREFRONT_VNPAY_IN_FLIGHT_STATUS" default:"01"`
	ExpireAfter    time.Duration `envconfig:"STOREFRONT_VNPAY_EXPIRE_AFTER" default:"0s"`
}

// Validate fails when a field the gateway needs to accept a request is absent.
func (g GatewayConfig) Validate() error {
	missing := []string{}
	if strings.TrimSpace(g.MerchantCode) == "" {
		missing = append(missing, EnvVNPayTmnCode)
	}
	if g.HashSecret.Empty() {
		missing = append(missing, EnvVNPayHashSecret)
	}
	if strings.TrimSpace(g.BaseURL) == "" {
		missing = append(missing, EnvVNPayURL)
	}
	if strings.TrimSpace(g.ReturnURL) == "" {
		missing = append(missing, EnvVNPayReturnURL)
	}
	if strings.TrimSpace(g.Version) == "" {
		missing = append(missing, EnvVNPayVersion)
	}
	if strings.TrimSpace(g.SuccessCode) == "" {
		missing = append(missing, EnvVNPaySuccessCode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("gateway config missing %s", strings.Join(missing, ", "))
	}
	if _, err := url.ParseRequestURI(g.BaseURL); err != nil {
		return fmt.Errorf("%s is not a valid url: %w", EnvVNPayURL, err)
	}
	if g.ExpireAfter < 0 {
		return fmt.Errorf("%s must not be negative", EnvVNPayExpireAfter)
	}
	return nil
}

// Location resolves the gateway time zone, falling back to a fixed GMT+7 zone
// when tz data is unavailable on the host.
func (g GatewayConfig) Location() *time.Location {
	if g.Timezone != "" {
		if loc, err := time.LoadLocation(g.Timezone); err == nil {
			return loc
		}
	}
	return time.FixedZone("GMT+7", 7*60*60)
}

type PaymentsConfig struct {
	SuccessPageURL    string        `envconfig:"STOREFRONT_PAYMENTS_SUCCESS_PAGE_URL" default:"/checkout/success"`
	FailurePageURL    string        `envconfig:"STOREFRONT_PAYMENTS_FAILURE_PAGE_URL" default:"/checkout/failure"`
	PendingPageURL    string        `envconfig:"STOREFRONT_PAYMENTS_PENDING_PAGE_URL" default:"/checkout/pending"`
	RateLimitWindow   time.Duration `envconfig:"STOREFRONT_PAYMENTS_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimit         int           `envconfig:"STOREFRONT_PAYMENTS_RATE_LIMIT" default:"20"`
	IdempotencyTTL    time.Duration `envconfig:"STOREFRONT_PAYMENTS_IDEMPOTENCY_TTL" default:"24h"`
	StalePendingAfter time.Duration `envconfig:"STOREFRONT_PAYMENTS_STALE_PENDING_AFTER" default:"30m"`
	StaleBatchSize    int           `envconfig:"STOREFRONT_PAYMENTS_STALE_BATCH_SIZE" default:"100"`
}

type CartConfig struct {
	GuestTTL        time.Duration `envconfig:"STOREFRONT_CART_GUEST_TTL" default:"168h"`
	MaxLineQuantity int           `envconfig:"STOREFRONT_CART_MAX_LINE_QUANTITY" default:"999"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"5m"`
	LockTTL    time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	JobTimeout time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"2m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range hostDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if !db.Password.Empty() {
		userInfo = url.UserPassword(db.User, db.Password.Reveal())
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
