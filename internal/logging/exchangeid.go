package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	log "github.com/sirupsen/logrus"
)

// exchangeIDKey is the context key for storing/retrieving exchange IDs.
type exchangeIDKey struct{}

// GenerateExchangeID creates a new 8-character hex exchange ID.
func GenerateExchangeID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}

// WithExchangeID returns a new context with the exchange ID attached.
func WithExchangeID(ctx context.Context, exchangeID string) context.Context {
	return context.WithValue(ctx, exchangeIDKey{}, exchangeID)
}

// GetExchangeID retrieves the exchange ID from the context.
// Returns empty string if not found.
func GetExchangeID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(exchangeIDKey{}).(string); ok {
		return id
	}
	return ""
}

// FromContext returns a logrus entry carrying the exchange ID of ctx, if any.
func FromContext(ctx context.Context) *log.Entry {
	entry := log.NewEntry(log.StandardLogger())
	if id := GetExchangeID(ctx); id != "" {
		entry = entry.WithField(exchangeIDField, id)
	}
	return entry
}
