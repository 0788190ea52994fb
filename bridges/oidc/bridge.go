// Package oidc bridges authentication for email domains whose provider
// already speaks OIDC (e.g. gmail.com). Instead of the email loop, the
// broker forwards the user to the upstream provider and verifies the
// returned id_token before minting its own.
package oidc

import (
	"context"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Bridge wraps one upstream OIDC provider.
type Bridge struct {
	provider *gooidc.Provider
	config   *oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// New discovers the provider's configuration from its issuer URL.
func New(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*Bridge, error) {
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[oidc.New] provider discovery")
	}

	return &Bridge{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{gooidc.ScopeOpenID, "email"},
		},
		verifier: provider.Verifier(&gooidc.Config{ClientID: clientID}),
	}, nil
}

// AuthURL builds the upstream authorization URL. state carries the broker
// session ID; nonce is a per-session secret echoed back in the id_token.
func (b *Bridge) AuthURL(state, nonce, loginHint string) string {
	return b.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("login_hint", loginHint),
	)
}

// VerifyCallback exchanges the upstream code and validates the id_token,
// returning the asserted email address. The email is only trusted when
// the provider marks it verified.
func (b *Bridge) VerifyCallback(ctx context.Context, code, nonce string) (string, error) {
	oauth2Token, err := b.config.Exchange(ctx, code)
	if err != nil {
		return "", errors.Wrap(err, "[Bridge.VerifyCallback] code exchange")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return "", errors.New("[Bridge.VerifyCallback] no id_token in token response")
	}

	idToken, err := b.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", errors.Wrap(err, "[Bridge.VerifyCallback] id_token verification")
	}
	if idToken.Nonce != nonce {
		return "", errors.New("[Bridge.VerifyCallback] nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", errors.Wrap(err, "[Bridge.VerifyCallback] extract claims")
	}
	if claims.Email == "" {
		return "", errors.New("[Bridge.VerifyCallback] provider returned no email")
	}
	if !claims.EmailVerified {
		return "", errors.New("[Bridge.VerifyCallback] provider email not verified")
	}

	return strings.ToLower(claims.Email), nil
}
