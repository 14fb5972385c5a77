package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

/* ClientCredentials identifies this service to an OIDC issuer */
type ClientCredentials struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

/* Provider wraps the discovered issuer and the client-credentials config */
type Provider struct {
	provider *oidc.Provider
	ccConf   *clientcredentials.Config
}

/* NewProvider discovers the issuer's token endpoint */
func NewProvider(ctx context.Context, creds ClientCredentials) (*Provider, error) {
	if creds.IssuerURL == "" || creds.ClientID == "" {
		return nil, errors.New("issuer URL and client ID are required")
	}

	provider, err := oidc.NewProvider(ctx, strings.TrimRight(creds.IssuerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	endpoint := provider.Endpoint()
	if endpoint.TokenURL == "" {
		return nil, errors.New("issuer does not advertise a token endpoint")
	}

	ccConf := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     endpoint.TokenURL,
		Scopes:       creds.Scopes,
		AuthStyle:    endpoint.AuthStyle,
	}

	return &Provider{
		provider: provider,
		ccConf:   ccConf,
	}, nil
}

/* TokenURL returns the discovered token endpoint */
func (p *Provider) TokenURL() string {
	return p.ccConf.TokenURL
}

/*
 * TokenSource returns a caching source of bearer tokens. The context
 * governs refresh requests for the lifetime of the source, so pass a
 * long-lived one.
 */
func (p *Provider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, p.ccConf.TokenSource(ctx))
}
