package config

// EnvPrefix is the envconfig prefix shared by every Lumora service.
const EnvPrefix = "lumora"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "LUMORA_DB_DSN"
	EnvDBHost = "LUMORA_DB_HOST"
	EnvDBUser = "LUMORA_DB_USER"
	EnvDBName = "LUMORA_DB_NAME"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
