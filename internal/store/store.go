// Package store persists credential records produced by successful logins. Records go to
// the local auth directory, a PostgreSQL table or an S3-compatible bucket.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/loginbridge/loginbridge/internal/auth"
	"github.com/loginbridge/loginbridge/internal/config"
)

// Record is one credential to persist.
type Record struct {
	// ID is the record key, usually a file name such as deeplogin-user@example.com-1700000000000.json.
	ID string
	// Storage is the credential payload.
	Storage auth.TokenStorage
	// Extra fields are merged into documents written to a database or bucket.
	Extra map[string]string
}

// Store persists credential records.
type Store interface {
	// Save persists rec and returns where it was written.
	Save(ctx context.Context, rec *Record) (string, error)
	// Close releases backend resources.
	Close() error
}

// New builds the store selected by cfg.Type. authDir is used by the file store.
func New(ctx context.Context, cfg config.StoreConfig, authDir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "file":
		return NewFileStore(authDir)
	case "postgres":
		pg, err := NewPostgresStore(ctx, PostgresStoreConfig{
			DSN:    cfg.PostgresDSN,
			Schema: cfg.PostgresSchema,
			Table:  cfg.PostgresTable,
		})
		if err != nil {
			return nil, err
		}
		if err = pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	case "object":
		return NewObjectStore(ObjectStoreConfig{
			Endpoint:  cfg.ObjectEndpoint,
			Bucket:    cfg.ObjectBucket,
			AccessKey: cfg.ObjectAccessKey,
			SecretKey: cfg.ObjectSecretKey,
			Prefix:    cfg.ObjectPrefix,
			UseSSL:    cfg.ObjectUseSSL,
		})
	default:
		return nil, fmt.Errorf("store: unsupported type %q", cfg.Type)
	}
}

// validateID rejects record ids that would escape the store's namespace.
func validateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("store: record id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("store: invalid record id %q", id)
	}
	return id, nil
}

func checkRecord(rec *Record) (string, error) {
	if rec == nil || rec.Storage == nil {
		return "", fmt.Errorf("store: record is empty")
	}
	return validateID(rec.ID)
}
