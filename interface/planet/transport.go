package planet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthScheme defines how the credential is sent to the provider
type AuthScheme string

const (
	// AuthAPIKey sends the api key as username of a basic authentication
	AuthAPIKey AuthScheme = "apikey"
	// AuthBearer sends a bearer token (the api key itself, or an oauth2 token)
	AuthBearer AuthScheme = "bearer"
)

// AuthConfig configures the authentication to the provider
type AuthConfig struct {
	Scheme AuthScheme
	APIKey string

	// OAuth2 client credentials (optional, AuthBearer only)
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewHTTPClient returns an http client that authenticates the requests sent to the given hosts.
// If no host is given, all the requests are authenticated.
func NewHTTPClient(ctx context.Context, cfg AuthConfig, hosts ...string) (*http.Client, error) {
	t := &transportAuth{
		originalTransport: http.DefaultTransport,
		hosts:             hosts,
	}
	switch cfg.Scheme {
	case AuthAPIKey, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("NewHTTPClient: missing api key")
		}
		t.apiKey = cfg.APIKey
	case AuthBearer:
		switch {
		case cfg.ClientID != "":
			cc := clientcredentials.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				TokenURL:     cfg.TokenURL,
				Scopes:       cfg.Scopes,
			}
			t.tokenSource = cc.TokenSource(ctx)
		case cfg.APIKey != "":
			t.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
		default:
			return nil, fmt.Errorf("NewHTTPClient: missing api key or oauth2 client id")
		}
	default:
		return nil, fmt.Errorf("NewHTTPClient: unknown auth scheme %s", cfg.Scheme)
	}
	return &http.Client{Transport: t}, nil
}

// HostOf returns the host of the url, or "" if it cannot be parsed
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

type transportAuth struct {
	originalTransport http.RoundTripper
	apiKey            string
	tokenSource       oauth2.TokenSource
	hosts             []string
}

func (t *transportAuth) authenticated(req *http.Request) bool {
	if len(t.hosts) == 0 {
		return true
	}
	for _, h := range t.hosts {
		if strings.EqualFold(req.URL.Host, h) {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper
func (t *transportAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.authenticated(req) {
		return t.originalTransport.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if t.tokenSource != nil {
		token, err := t.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to refresh token: %w", err)
		}
		token.SetAuthHeader(req)
	} else {
		req.SetBasicAuth(t.apiKey, "")
	}
	return t.originalTransport.RoundTrip(req)
}
