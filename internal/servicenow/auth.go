package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/config"
	"github.com/spec-kit/incident-gateway/pkg/util"
)

// AuthType selects the credential-attachment strategy.
type AuthType string

const (
	AuthTypeBasic  AuthType = "basic"
	AuthTypeOAuth  AuthType = "oauth"
	AuthTypeAPIKey AuthType = "apikey"
)

// Strategy decorates outgoing requests to the external ticketing system
// with credentials. The variant set is closed: every implementation lives
// in this package, and NewStrategy matches exhaustively on AuthType so a
// fourth variant is a compile-surfaced change here, not a scattered one.
type Strategy interface {
	apply(ctx context.Context, req *http.Request) error
}

// BasicStrategy attaches HTTP basic credentials.
type BasicStrategy struct {
	Username string
	Password string
}

func (s *BasicStrategy) apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(s.Username, s.Password)
	return nil
}

// APIKeyStrategy attaches a static key under a configurable header.
type APIKeyStrategy struct {
	Key        string
	HeaderName string
}

func (s *APIKeyStrategy) apply(_ context.Context, req *http.Request) error {
	req.Header.Set(s.HeaderName, s.Key)
	return nil
}

// OAuthStrategy attaches a bearer token obtained via the password grant.
// Token acquisition is lazy: nothing is fetched until the first request,
// and a fresh token is fetched whenever the cached one has expired. The
// refresh happens under a mutex so concurrent requests that observe an
// expired token trigger exactly one token call.
type OAuthStrategy struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	TokenURL     string

	http *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// expirySkew renews tokens slightly early so a token that is valid when
// checked cannot expire mid-request.
const expirySkew = 30 * time.Second

func (s *OAuthStrategy) apply(ctx context.Context, req *http.Request) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (s *OAuthStrategy) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expires.Add(-expirySkew)) {
		return s.token, nil
	}

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {s.ClientID},
		"client_secret": {s.ClientSecret},
		"username":      {s.Username},
		"password":      {s.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", util.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", util.NewTransportError(fmt.Errorf("oauth token request: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", util.NewUpstreamError(resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", util.NewUpstreamError(resp.StatusCode, string(body))
	}
	if payload.AccessToken == "" {
		return "", util.NewUpstreamError(resp.StatusCode, "token response missing access_token")
	}

	s.token = payload.AccessToken
	s.expires = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return s.token, nil
}

// NewStrategy validates the configured auth variant and builds its
// strategy. All required fields must be present here, before any network
// call can be attempted; the caller treats an error as fatal.
func NewStrategy(cfg config.ServiceNowConfig, logger *zap.Logger) (Strategy, error) {
	switch AuthType(strings.ToLower(cfg.AuthType)) {
	case AuthTypeBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("username and password are required for basic authentication (SERVICENOW_USERNAME, SERVICENOW_PASSWORD)")
		}
		return &BasicStrategy{Username: cfg.Username, Password: cfg.Password}, nil

	case AuthTypeOAuth:
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("client id, client secret, username, and password are required for oauth password grant")
		}
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = strings.TrimRight(cfg.InstanceURL, "/") + "/oauth_token.do"
			logger.Warn("oauth token URL not provided, defaulting", zap.String("token_url", tokenURL))
		}
		return &OAuthStrategy{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Username:     cfg.Username,
			Password:     cfg.Password,
			TokenURL:     tokenURL,
			http:         &http.Client{Timeout: cfg.RequestTimeout()},
		}, nil

	case AuthTypeAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api key is required for api key authentication (SERVICENOW_API_KEY)")
		}
		header := cfg.APIKeyHeader
		if header == "" {
			header = "X-ServiceNow-API-Key"
		}
		return &APIKeyStrategy{Key: cfg.APIKey, HeaderName: header}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", cfg.AuthType)
	}
}
