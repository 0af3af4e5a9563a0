// Package deeplogin implements the browser-mediated deep-login exchange: a PKCE-style
// challenge/verifier pair is derived, a UI collaborator carries the login page through
// its verification states, and the backend poll endpoint is queried until it hands out
// an access/refresh token pair or the attempt budget is spent.
package deeplogin

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// verifierSize is the number of random bytes behind a verifier.
const verifierSize = 32

// Challenge is the proof material of one exchange. It is created by GenerateChallenge,
// owned by a single Exchange.Run call and never reused across exchanges.
type Challenge struct {
	// VerifierBytes is the raw random input of the verifier.
	VerifierBytes [verifierSize]byte
	// Verifier is VerifierBytes encoded as unpadded base64url. It is sent only to the poll endpoint.
	Verifier string
	// Challenge is the unpadded base64url SHA-256 of Verifier. It is embedded in the login URL.
	Challenge string
	// SessionID is a random UUIDv4 correlating the browser login with the backend poll record.
	SessionID string
}

// GenerateChallenge draws a fresh verifier from crypto/rand and derives the challenge
// and an independent session id. A failing random source is returned as an error and
// must not be retried by the caller.
func GenerateChallenge() (*Challenge, error) {
	return generateChallenge(rand.Reader)
}

func generateChallenge(random io.Reader) (*Challenge, error) {
	var raw [verifierSize]byte
	if _, err := io.ReadFull(random, raw[:]); err != nil {
		return nil, fmt.Errorf("deeplogin: failed to generate verifier: %w", err)
	}
	sessionID, err := uuid.NewRandomFromReader(random)
	if err != nil {
		return nil, fmt.Errorf("deeplogin: failed to generate session id: %w", err)
	}
	verifier := encodeVerifier(raw[:])
	return &Challenge{
		VerifierBytes: raw,
		Verifier:      verifier,
		Challenge:     challengeFromVerifier(verifier),
		SessionID:     sessionID.String(),
	}, nil
}

// encodeVerifier encodes raw verifier bytes as URL-safe base64 without padding.
func encodeVerifier(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// challengeFromVerifier hashes the UTF-8 verifier string with SHA-256 and encodes the
// digest as URL-safe base64 without padding (the S256 method of RFC 7636).
func challengeFromVerifier(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
