package config

import "testing"

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	cfg.SanitizeDefaults()
	cfg.ApplyEnv(mapLookup(map[string]string{
		"LOGINBRIDGE_LOGIN_BASE_URL": "https://login.example.com/",
		"loginbridge_api_base_url":   " https://api.example.com ",
		"OBJECTSTORE_ENDPOINT":       "s3.example.com",
		"OBJECTSTORE_BUCKET":         "creds",
	}))

	if cfg.LoginBaseURL != "https://login.example.com" {
		t.Fatalf("login base = %q", cfg.LoginBaseURL)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Fatalf("api base = %q", cfg.APIBaseURL)
	}
	if cfg.Store.Type != "object" || cfg.Store.ObjectEndpoint != "s3.example.com" || cfg.Store.ObjectBucket != "creds" {
		t.Fatalf("store = %+v", cfg.Store)
	}
}

func TestApplyEnvPostgresWins(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyEnv(mapLookup(map[string]string{
		"OBJECTSTORE_ENDPOINT": "s3.example.com",
		"PGSTORE_DSN":          "postgres://localhost/db",
		"PGSTORE_SCHEMA":       "auth",
	}))
	if cfg.Store.Type != "postgres" || cfg.Store.PostgresSchema != "auth" {
		t.Fatalf("store = %+v", cfg.Store)
	}
}

func TestApplyEnvIgnoresBlankValues(t *testing.T) {
	cfg := &Config{LoginBaseURL: "https://keep"}
	cfg.ApplyEnv(mapLookup(map[string]string{"LOGINBRIDGE_LOGIN_BASE_URL": "  "}))
	if cfg.LoginBaseURL != "https://keep" {
		t.Fatalf("login base = %q", cfg.LoginBaseURL)
	}
}
