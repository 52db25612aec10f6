package config

const (
	EnvPrefix = "LOCALTABLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LOCALTABLE_DB_DSN"
	EnvDBHost = "LOCALTABLE_DB_HOST"
	EnvDBUser = "LOCALTABLE_DB_USER"
	EnvDBName = "LOCALTABLE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
