package oidc

// Package oidc provides OIDC/OAuth single sign-on for the jobqueue API.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/ports"
	"github.com/target/jobqueue/internal/util"
)

const stateLength = 32

// Provider implements ports.AuthProvider using OIDC/OAuth2.
type Provider struct {
	config       *oauth2.Config
	httpClient   *http.Client
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.AuthProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a 30s timeout client
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider discovers the issuer and builds a provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	switch {
	case config.ClientID == "":
		return nil, errors.New("client ID is required")
	case config.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case config.RedirectURL == "":
		return nil, errors.New("redirect URL is required")
	case config.DiscoveryURL == "":
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = gooidc.ClientContext(ctx, httpClient)
	op, err := gooidc.NewProvider(ctx, issuerFromDiscoveryURL(config.DiscoveryURL))
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		httpClient:   httpClient,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

func issuerFromDiscoveryURL(u string) string {
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/.well-known/openid-configuration")
	return u
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := util.RandomString(stateLength)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := util.RandomString(stateLength)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured RedirectURL; IdPs match it exactly.
	authURL := p.config.AuthCodeURL(state, gooidc.Nonce(nonce))
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	claims, err := p.verifiedClaims(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	if claims.Email == "" || claims.Subject == "" {
		if fillErr := p.fillFromUserInfo(ctx, token, &claims); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if claims.Email == "" {
		return domainauth.Identity{}, errors.New("identity provider returned no email")
	}

	expiresAt := time.Now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}

	return claims.identity(expiresAt), nil
}

// standardClaims is the subset of OIDC claims mapped onto an Identity.
type standardClaims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Groups            []string `json:"groups"`
	Nonce             string   `json:"nonce"`

	raw map[string]any
}

func (c standardClaims) identity(expiresAt time.Time) domainauth.Identity {
	return domainauth.Identity{
		Subject:   c.Subject,
		Email:     strings.ToLower(strings.TrimSpace(c.Email)),
		Name:      firstNonEmpty(c.Name, c.PreferredUsername),
		Groups:    slices.Clone(c.Groups),
		Claims:    c.raw,
		ExpiresAt: expiresAt,
	}
}

// claimDecoder is satisfied by *gooidc.IDToken and *gooidc.UserInfo.
type claimDecoder interface {
	Claims(v any) error
}

func decodeClaims(src claimDecoder) (standardClaims, error) {
	var c standardClaims
	if err := src.Claims(&c); err != nil {
		return c, err
	}
	if err := src.Claims(&c.raw); err != nil {
		return c, err
	}
	return c, nil
}

func (p *Provider) verifiedClaims(ctx context.Context, tok *oauth2.Token, expectedNonce string) (standardClaims, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return standardClaims{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return standardClaims{}, fmt.Errorf("verify id_token: %w", err)
	}
	claims, err := decodeClaims(idTok)
	if err != nil {
		return standardClaims{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	if claims.Nonce != expectedNonce {
		return standardClaims{}, errors.New("invalid nonce")
	}
	return claims, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, c *standardClaims) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	info, err := decodeClaims(ui)
	if err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	mergeClaims(c, info)
	return nil
}

// mergeClaims fills fields missing from the ID token with userinfo values.
func mergeClaims(c *standardClaims, info standardClaims) {
	c.Subject = firstNonEmpty(c.Subject, info.Subject)
	c.Email = firstNonEmpty(c.Email, info.Email)
	c.Name = firstNonEmpty(c.Name, info.Name)
	c.PreferredUsername = firstNonEmpty(c.PreferredUsername, info.PreferredUsername)
	if len(c.Groups) == 0 {
		c.Groups = info.Groups
	}
	if c.raw == nil {
		c.raw = map[string]any{}
	}
	for k, v := range info.raw {
		if _, ok := c.raw[k]; !ok {
			c.raw[k] = v
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
