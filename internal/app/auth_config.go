package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/middleware"
	"github.com/charlesng35/notely/pkg/crypto"
)

const stateKeyPurpose = "oauth-state"

// TokenServiceConfig converts AuthConfig into the parameters expected by the token service.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}

	return auth.TokenConfig{
		Secret: c.JWT.Secret,
		Issuer: c.JWT.Issuer,
		TTL:    ttl,
	}
}

// OTPServiceConfig converts AuthConfig into OTPService parameters.
func (c AuthConfig) OTPServiceConfig() auth.OTPConfig {
	ttl := c.OTP.TTL
	if ttl <= 0 {
		ttl = auth.DefaultOTPTTL
	}
	return auth.OTPConfig{TTL: ttl}
}

// GoogleProviderConfig converts AuthConfig into the Google client registration.
func (c AuthConfig) GoogleProviderConfig() auth.GoogleConfig {
	return auth.GoogleConfig{
		ClientID:     strings.TrimSpace(c.Google.ClientID),
		ClientSecret: strings.TrimSpace(c.Google.ClientSecret),
		RedirectURL:  strings.TrimSpace(c.Google.RedirectURL),
		Timeout:      c.Google.Timeout,
	}
}

// StateKey returns the AES key sealing OAuth state. An explicit state_key wins;
// otherwise a subkey is derived from the JWT secret.
func (c AuthConfig) StateKey() ([]byte, error) {
	if strings.TrimSpace(c.Google.StateKey) != "" {
		key, err := DecodeKey(c.Google.StateKey)
		if err != nil {
			return nil, fmt.Errorf("auth.google.state_key: %w", err)
		}
		switch len(key) {
		case 16, 24, 32:
			return key, nil
		default:
			return nil, fmt.Errorf("auth.google.state_key: must decode to 16, 24 or 32 bytes, got %d", len(key))
		}
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return nil, fmt.Errorf("auth.jwt.secret is required to derive the oauth state key")
	}
	return crypto.DeriveSubkey(c.JWT.Secret, stateKeyPurpose)
}

// RatePolicies converts rate limit settings into middleware policies. Disabled
// limits come back with a zero Limit.
func (c AuthConfig) RatePolicies() (authPolicy, otpPolicy, globalPolicy middleware.RatePolicy) {
	authPolicy = middleware.RatePolicy{Name: "auth"}
	otpPolicy = middleware.RatePolicy{Name: "otp"}
	globalPolicy = middleware.RatePolicy{Name: "global"}
	if !c.RateLimit.Enabled {
		return
	}
	authPolicy.Limit, authPolicy.Window = c.RateLimit.Auth.Limit, c.RateLimit.Auth.Window
	otpPolicy.Limit, otpPolicy.Window = c.RateLimit.OTP.Limit, c.RateLimit.OTP.Window
	globalPolicy.Limit, globalPolicy.Window = c.RateLimit.Global.Limit, c.RateLimit.Global.Window
	return
}
