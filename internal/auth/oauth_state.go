package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/notely/pkg/crypto"
)

// DefaultStateTTL bounds the time between redirecting to the provider and its callback.
const DefaultStateTTL = 10 * time.Minute

var (
	ErrStateInvalid = errors.New("oauth state: invalid")
	ErrStateExpired = errors.New("oauth state: expired")
)

// StatePayload is carried through the provider round trip inside the state parameter.
type StatePayload struct {
	Provider string    `json:"p"`
	Nonce    string    `json:"n"`
	Verifier string    `json:"v"`
	IssuedAt time.Time `json:"iat"`
}

// StateCodec seals state payloads with AES-GCM so the callback needs no server-side storage.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateCodec constructs a StateCodec using the provided symmetric key.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("oauth state: key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{key: key, ttl: ttl, now: now}, nil
}

// Encode stamps and seals payload.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("oauth state: provider is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oauth state: marshal payload: %w", err)
	}
	sealed, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: seal payload: %w", err)
	}
	return sealed, nil
}

// Decode opens a state string and enforces its lifetime.
func (c *StateCodec) Decode(state string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(state) == "" {
		return payload, ErrStateInvalid
	}

	raw, err := crypto.Decrypt(state, c.key)
	if err != nil {
		return payload, ErrStateInvalid
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrStateInvalid
	}
	if payload.Provider == "" || payload.IssuedAt.IsZero() {
		return payload, ErrStateInvalid
	}
	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, ErrStateExpired
	}
	return payload, nil
}

// PKCEPair holds a PKCE verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE produces a fresh verifier and challenge.
func GeneratePKCE() (PKCEPair, error) {
	verifier, err := crypto.GenerateToken(48)
	if err != nil {
		return PKCEPair{}, fmt.Errorf("pkce: generate verifier: %w", err)
	}
	return PKCEPair{Verifier: verifier, Challenge: PKCEChallenge(verifier)}, nil
}

// PKCEChallenge derives the S256 challenge for verifier.
func PKCEChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
