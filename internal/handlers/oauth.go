package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/internal/services"
	"github.com/charlesng35/notely/pkg/crypto"
	appErrors "github.com/charlesng35/notely/pkg/errors"
	"github.com/charlesng35/notely/pkg/logger"
	"github.com/charlesng35/notely/pkg/response"
)

const (
	oauthErrNotConfigured = "google_not_configured"
	oauthErrFailed        = "google_auth_failed"
	oauthNonceBytes       = 24
)

// IdentityProvider is the OAuth/OIDC client used by the sign-in redirect flow.
type IdentityProvider interface {
	AuthCodeURL(state, nonce, challenge string) string
	Exchange(ctx context.Context, code, verifier, nonce string) (*auth.ExternalIdentity, error)
}

var _ IdentityProvider = (*auth.GoogleProvider)(nil)

// OAuthHandler drives the Google sign-in redirect round trip.
type OAuthHandler struct {
	provider    IdentityProvider
	state       *auth.StateCodec
	flow        *services.AuthFlowService
	frontendURL string
	log         *zap.Logger
}

// NewOAuthHandler constructs the handler. A nil provider means Google sign-in is
// not configured; both endpoints then report it instead of failing at startup.
func NewOAuthHandler(provider IdentityProvider, state *auth.StateCodec, flow *services.AuthFlowService, frontendURL string) *OAuthHandler {
	return &OAuthHandler{
		provider:    provider,
		state:       state,
		flow:        flow,
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		log:         logger.WithModule("oauth"),
	}
}

func (h *OAuthHandler) configured() bool {
	return h.provider != nil && h.state != nil
}

// GET /api/auth/google
func (h *OAuthHandler) Begin(c *gin.Context) {
	if !h.configured() {
		response.Error(c, appErrors.ErrProviderNotConfigured)
		return
	}

	nonce, err := crypto.GenerateToken(oauthNonceBytes)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	pkce, err := auth.GeneratePKCE()
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	state, err := h.state.Encode(auth.StatePayload{
		Provider: auth.ProviderGoogle,
		Nonce:    nonce,
		Verifier: pkce.Verifier,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, nonce, pkce.Challenge))
}

// GET /api/auth/google/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	if !h.configured() {
		h.redirect(c, "/signin", url.Values{"error": {oauthErrNotConfigured}})
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Info("provider rejected sign-in", zap.String("error", providerErr))
		h.fail(c)
		return
	}

	payload, err := h.state.Decode(c.Query("state"))
	if err != nil || payload.Provider != auth.ProviderGoogle {
		h.log.Warn("invalid oauth state", zap.Error(err))
		h.fail(c)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		h.fail(c)
		return
	}

	ctx := requestContext(c)
	identity, err := h.provider.Exchange(ctx, code, payload.Verifier, payload.Nonce)
	if err != nil {
		h.log.Warn("oauth exchange failed", zap.Error(err))
		h.fail(c)
		return
	}

	result, err := h.flow.OAuthLogin(ctx, *identity)
	if err != nil {
		h.log.Warn("oauth login rejected", zap.Error(err))
		h.fail(c)
		return
	}

	h.redirect(c, "/dashboard", url.Values{"token": {result.Token}})
}

func (h *OAuthHandler) fail(c *gin.Context) {
	h.redirect(c, "/signin", url.Values{"error": {oauthErrFailed}})
}

func (h *OAuthHandler) redirect(c *gin.Context, path string, query url.Values) {
	target := h.frontendURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	c.Redirect(http.StatusSeeOther, target)
}
