package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/noah-isme/vzs-club-api/pkg/config"
)

// RelyingPartyExchanger performs the authorization code exchange against an
// OIDC provider discovered from its issuer URL.
type RelyingPartyExchanger struct {
	party rp.RelyingParty
}

// NewOIDCExchanger discovers the provider and reads the client secret from
// cfg.ClientSecretPath.
func NewOIDCExchanger(ctx context.Context, cfg config.OIDCConfig) (*RelyingPartyExchanger, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc issuer and client id are required")
	}
	secret := ""
	if cfg.ClientSecretPath != "" {
		raw, err := os.ReadFile(cfg.ClientSecretPath)
		if err != nil {
			return nil, fmt.Errorf("read oidc client secret: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}

	party, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.Issuer,
		cfg.ClientID,
		secret,
		cfg.RedirectURL,
		[]string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail},
		rp.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}
	return &RelyingPartyExchanger{party: party}, nil
}

// ExchangeEmail implements OIDCExchanger.
func (e *RelyingPartyExchanger) ExchangeEmail(ctx context.Context, code string) (string, error) {
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, e.party)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if tokens.IDTokenClaims == nil {
		return "", errors.New("provider returned no id token")
	}
	email := strings.TrimSpace(tokens.IDTokenClaims.Email)
	if email == "" {
		return "", errors.New("id token carries no email")
	}
	return email, nil
}
