package planet

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// APIKeyEnv is the environment variable holding the api key
const APIKeyEnv = "PL_API_KEY"

// Config configures a client
type Config struct {
	Auth        AuthConfig
	BasemapsURL string
	DataURL     string
	OrdersURL   string
}

// SetFlags configures the flags of the client config
//
// cfg := planet.Config{}
// cfg.SetFlags()
//
// flag.Parse()
//
// client, err := cfg.NewClient(ctx)
func (cfg *Config) SetFlags() {
	flag.StringVar((*string)(&cfg.Auth.Scheme), "auth", string(AuthAPIKey), "authentication scheme (apikey: basic authentication with the api key, bearer: bearer token)")
	flag.StringVar(&cfg.Auth.ClientID, "oauth-client-id", "", "oauth2 client id (optional, bearer only). If set, tokens are fetched with client credentials")
	flag.StringVar(&cfg.Auth.ClientSecret, "oauth-client-secret", "", "oauth2 client secret")
	flag.StringVar(&cfg.Auth.TokenURL, "oauth-token-url", "", "oauth2 token endpoint")
	flag.StringVar(&cfg.BasemapsURL, "basemaps-url", DefaultBasemapsURL, "basemaps endpoint")
	flag.StringVar(&cfg.DataURL, "data-url", DefaultDataURL, "data endpoint")
	flag.StringVar(&cfg.OrdersURL, "orders-url", DefaultOrdersURL, "orders endpoint")
}

// NewClient creates an authenticated client. The api key is read from PL_API_KEY if not set.
func (cfg Config) NewClient(ctx context.Context) (*Client, error) {
	if cfg.Auth.APIKey == "" {
		cfg.Auth.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.Auth.APIKey == "" && cfg.Auth.ClientID == "" {
		return nil, fmt.Errorf("NewClient: missing %s environment variable", APIKeyEnv)
	}
	c := NewClient(nil)
	if cfg.BasemapsURL != "" {
		c.BasemapsURL = cfg.BasemapsURL
	}
	if cfg.DataURL != "" {
		c.DataURL = cfg.DataURL
	}
	if cfg.OrdersURL != "" {
		c.OrdersURL = cfg.OrdersURL
	}
	var err error
	if c.HTTP, err = NewHTTPClient(ctx, cfg.Auth, c.Hosts()...); err != nil {
		return nil, fmt.Errorf("NewClient.%w", err)
	}
	return c, nil
}
