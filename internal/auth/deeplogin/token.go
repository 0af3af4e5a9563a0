package deeplogin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/loginbridge/loginbridge/internal/misc"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
)

// storageType tags persisted records written by this package.
const storageType = "deeplogin"

// Credential is the result of a successful exchange.
type Credential struct {
	Email        string
	AuthID       string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
}

// Token returns the credential as an OAuth2 bearer token for use with oauth2 HTTP clients.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
	}
}

// TokenSource returns a static token source serving the credential's access token.
func (c *Credential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(c.Token())
}

// TokenStorage is the persisted form of a credential.
type TokenStorage struct {
	// Email is the account the credential belongs to.
	Email string `json:"email"`
	// Password is stored only when the caller supplied one for the account.
	Password string `json:"password,omitempty"`
	// AccessToken is the session access token.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens.
	RefreshToken string `json:"refresh_token"`
	// CreatedTime is the RFC3339 time the exchange completed.
	CreatedTime string `json:"created_time"`
	// Type indicates the record kind, always "deeplogin".
	Type string `json:"type"`
}

// NewTokenStorage builds the persisted record of cred. password may be empty.
func NewTokenStorage(cred *Credential, password string) *TokenStorage {
	return &TokenStorage{
		Email:        cred.Email,
		Password:     password,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		CreatedTime:  cred.IssuedAt.UTC().Format(time.RFC3339),
		Type:         storageType,
	}
}

// SaveTokenToFile serializes the token storage to a JSON file, creating parent
// directories as needed. The file is readable by the owner only.
func (ts *TokenStorage) SaveTokenToFile(authFilePath string) error {
	misc.LogSavingCredentials(authFilePath)
	ts.Type = storageType

	if err := os.MkdirAll(filepath.Dir(authFilePath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}

	f, err := os.OpenFile(authFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err = encoder.Encode(ts); err != nil {
		return fmt.Errorf("failed to write token to file: %w", err)
	}
	return nil
}

// Metadata returns the storage as a JSON document extended with the given extra
// top-level fields (for example the exchange id or the auth id). Keys are taken
// literally, so "a.b" becomes a single field rather than a nested object.
func (ts *TokenStorage) Metadata(extra map[string]string) ([]byte, error) {
	raw, err := json.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("marshal token storage: %w", err)
	}
	for key, value := range extra {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if raw, err = sjson.SetBytes(raw, escapePathKey(key), value); err != nil {
			return nil, fmt.Errorf("set metadata %s: %w", key, err)
		}
	}
	return raw, nil
}

// escapePathKey backslash-escapes every character that sjson could read as path syntax.
func escapePathKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 0x7f) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9@._-]+`)

// CredentialFileName returns the file name used for a credential of email issued at t.
func CredentialFileName(email string, t time.Time) string {
	name := unsafeFileChars.ReplaceAllString(strings.TrimSpace(email), "_")
	if name == "" {
		name = "account"
	}
	return fmt.Sprintf("%s-%s-%d.json", storageType, name, t.UnixMilli())
}
