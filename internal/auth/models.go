// Package auth holds the storage contract shared by login flows and credential stores.
package auth

// TokenStorage is a credential record that can be persisted by a store.
type TokenStorage interface {
	// SaveTokenToFile writes the record as JSON to authFilePath.
	SaveTokenToFile(authFilePath string) error
	// Metadata returns the record as a JSON document with extra top-level fields merged in.
	Metadata(extra map[string]string) ([]byte, error)
}
