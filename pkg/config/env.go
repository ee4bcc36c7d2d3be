package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "STOREFRONT_APP_ENV"
	EnvPort   = "STOREFRONT_APP_PORT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvPricingShippingFee           = "STOREFRONT_PRICING_SHIPPING_FEE"
	EnvPricingFreeShippingThreshold = "STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvPricingTaxRate               = "STOREFRONT_PRICING_TAX_RATE"

	EnvVNPayVersion     = "STOREFRONT_VNPAY_VERSION"
	EnvVNPayTmnCode     = "STOREFRONT_VNPAY_TMN_CODE"
	EnvVNPayHashSecret  = "STOREFRONT_VNPAY_HASH_SECRET"
	EnvVNPayURL         = "STOREFRONT_VNPAY_URL"
	EnvVNPayReturnURL   = "STOREFRONT_VNPAY_RETURN_URL"
	EnvVNPaySuccessCode = "STOREFRONT_VNPAY_SUCCESS_CODE"
	EnvVNPayExpireAfter = "STOREFRONT_VNPAY_EXPIRE_AFTER"
)

var hostDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
