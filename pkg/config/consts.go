package config

const (
	EnvPrefix = "keydrop"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv        = "KEYDROP_APP_ENV"
	EnvPort          = "KEYDROP_APP_PORT"
	EnvDBDSN         = "KEYDROP_DB_DSN"
	EnvDBHost        = "KEYDROP_DB_HOST"
	EnvDBUser        = "KEYDROP_DB_USER"
	EnvDBName        = "KEYDROP_DB_NAME"
	EnvRedisURL      = "KEYDROP_REDIS_URL"
	EnvGatewayURL    = "KEYDROP_GATEWAY_BASE_URL"
	EnvGatewayAPIKey = "KEYDROP_GATEWAY_API_KEY"
	EnvAdminPassword = "KEYDROP_ADMIN_PASSWORD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
