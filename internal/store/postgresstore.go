package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultCredentialTable = "credential_store"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
}

// PostgresStore keeps one JSONB row per credential record.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
}

// NewPostgresStore establishes a connection to PostgreSQL.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	cfg, err := normalizePostgresConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}
	return &PostgresStore{db: db, cfg: cfg}, nil
}

func normalizePostgresConfig(cfg PostgresStoreConfig) (PostgresStoreConfig, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return cfg, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.Schema = strings.TrimSpace(cfg.Schema)
	cfg.Table = strings.TrimSpace(cfg.Table)
	if cfg.Table == "" {
		cfg.Table = defaultCredentialTable
	}
	return cfg, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the credential table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not initialized")
	}
	if s.cfg.Schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(s.cfg.Schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.fullTableName())); err != nil {
		return fmt.Errorf("postgres store: create credential table: %w", err)
	}
	return nil
}

// Save upserts rec keyed by its id and returns the id.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) (string, error) {
	id, err := checkRecord(rec)
	if err != nil {
		return "", err
	}
	data, err := rec.Storage.Metadata(rec.Extra)
	if err != nil {
		return "", fmt.Errorf("postgres store: %w", err)
	}
	if err = s.persistCredential(ctx, id, data); err != nil {
		return "", err
	}
	log.WithField("store", "postgres").Debugf("credential %s saved", id)
	return id, nil
}

func (s *PostgresStore) persistCredential(ctx context.Context, id string, data []byte) error {
	jsonPayload := json.RawMessage(data)
	if _, err := s.db.ExecContext(ctx, upsertQuery(s.fullTableName()), id, jsonPayload); err != nil {
		return fmt.Errorf("postgres store: upsert credential record: %w", err)
	}
	return nil
}

func upsertQuery(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, content, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, table)
}

func (s *PostgresStore) fullTableName() string {
	if s.cfg.Schema == "" {
		return quoteIdentifier(s.cfg.Table)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(s.cfg.Table)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}
