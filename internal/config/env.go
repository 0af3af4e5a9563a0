package config

import (
	"os"
	"strings"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides configuration from environment variables. Both uppercase and
// lowercase keys are accepted. PGSTORE_DSN selects the postgres store and
// OBJECTSTORE_ENDPOINT the object store; postgres wins when both are set.
func (cfg *Config) ApplyEnv(lookup LookupFunc) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		for _, k := range []string{key, strings.ToLower(key)} {
			if value, ok := lookup(k); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}

	if value, ok := get("LOGINBRIDGE_LOGIN_BASE_URL"); ok {
		cfg.LoginBaseURL = strings.TrimRight(value, "/")
	}
	if value, ok := get("LOGINBRIDGE_API_BASE_URL"); ok {
		cfg.APIBaseURL = strings.TrimRight(value, "/")
	}
	if value, ok := get("LOGINBRIDGE_PROXY_URL"); ok {
		cfg.ProxyURL = value
	}

	if value, ok := get("OBJECTSTORE_ENDPOINT"); ok {
		cfg.Store.Type = "object"
		cfg.Store.ObjectEndpoint = value
	}
	if value, ok := get("OBJECTSTORE_ACCESS_KEY"); ok {
		cfg.Store.ObjectAccessKey = value
	}
	if value, ok := get("OBJECTSTORE_SECRET_KEY"); ok {
		cfg.Store.ObjectSecretKey = value
	}
	if value, ok := get("OBJECTSTORE_BUCKET"); ok {
		cfg.Store.ObjectBucket = value
	}

	if value, ok := get("PGSTORE_DSN"); ok {
		cfg.Store.Type = "postgres"
		cfg.Store.PostgresDSN = value
	}
	if value, ok := get("PGSTORE_SCHEMA"); ok {
		cfg.Store.PostgresSchema = value
	}
}
