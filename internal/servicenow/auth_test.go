package servicenow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/config"
	"github.com/spec-kit/incident-gateway/pkg/util"
)

func TestNewStrategyValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ServiceNowConfig
		wantErr bool
	}{
		{
			name: "basic complete",
			cfg:  config.ServiceNowConfig{AuthType: "basic", Username: "admin", Password: "secret"},
		},
		{
			name:    "basic missing password",
			cfg:     config.ServiceNowConfig{AuthType: "basic", Username: "admin"},
			wantErr: true,
		},
		{
			name: "oauth complete",
			cfg: config.ServiceNowConfig{
				AuthType: "oauth", ClientID: "cid", ClientSecret: "cs",
				Username: "admin", Password: "secret", TokenURL: "https://example.test/token",
			},
		},
		{
			name: "oauth missing client secret",
			cfg: config.ServiceNowConfig{
				AuthType: "oauth", ClientID: "cid", Username: "admin", Password: "secret",
			},
			wantErr: true,
		},
		{
			name: "apikey complete",
			cfg:  config.ServiceNowConfig{AuthType: "apikey", APIKey: "k"},
		},
		{
			name:    "apikey missing key",
			cfg:     config.ServiceNowConfig{AuthType: "apikey"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.ServiceNowConfig{AuthType: "kerberos"},
			wantErr: true,
		},
		{
			name: "type matching is case insensitive",
			cfg:  config.ServiceNowConfig{AuthType: "Basic", Username: "admin", Password: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := NewStrategy(tt.cfg, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, strategy)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, strategy)
		})
	}
}

func TestNewStrategyOAuthDefaultTokenURL(t *testing.T) {
	cfg := config.ServiceNowConfig{
		InstanceURL: "https://dev.example.test/",
		AuthType:    "oauth",
		ClientID:    "cid", ClientSecret: "cs",
		Username: "admin", Password: "secret",
	}

	strategy, err := NewStrategy(cfg, zap.NewNop())
	require.NoError(t, err)

	oauth, ok := strategy.(*OAuthStrategy)
	require.True(t, ok)
	assert.Equal(t, "https://dev.example.test/oauth_token.do", oauth.TokenURL)
}

func TestBasicStrategyApply(t *testing.T) {
	strategy := &BasicStrategy{Username: "admin", Password: "secret"}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/", nil)

	require.NoError(t, strategy.apply(context.Background(), req))

	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}

func TestAPIKeyStrategyApply(t *testing.T) {
	strategy := &APIKeyStrategy{Key: "k-123", HeaderName: "X-Custom-Key"}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/", nil)

	require.NoError(t, strategy.apply(context.Background(), req))
	assert.Equal(t, "k-123", req.Header.Get("X-Custom-Key"))
}

func TestOAuthStrategyFetchesTokenOnce(t *testing.T) {
	var tokenCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.FormValue("grant_type"))
		assert.Equal(t, "cid", r.FormValue("client_id"))
		assert.Equal(t, "admin", r.FormValue("username"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	strategy := &OAuthStrategy{
		ClientID: "cid", ClientSecret: "cs",
		Username: "admin", Password: "secret",
		TokenURL: server.URL,
		http:     server.Client(),
	}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "https://example.test/", nil)
		require.NoError(t, strategy.apply(context.Background(), req))
		assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
	}
	assert.Equal(t, 1, tokenCalls, "cached token should be reused until expiry")
}

func TestOAuthStrategyRefreshesExpiredToken(t *testing.T) {
	var tokenCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-fresh",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	strategy := &OAuthStrategy{
		ClientID: "cid", ClientSecret: "cs",
		Username: "admin", Password: "secret",
		TokenURL: server.URL,
		http:     server.Client(),
	}
	strategy.token = "tok-stale"
	strategy.expires = time.Now().Add(-time.Minute)

	req := httptest.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, strategy.apply(context.Background(), req))

	assert.Equal(t, "Bearer tok-fresh", req.Header.Get("Authorization"))
	assert.Equal(t, 1, tokenCalls)
}

func TestOAuthStrategyTokenEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	strategy := &OAuthStrategy{
		ClientID: "cid", ClientSecret: "cs",
		Username: "admin", Password: "bad",
		TokenURL: server.URL,
		http:     server.Client(),
	}

	req := httptest.NewRequest(http.MethodGet, "https://example.test/", nil)
	err := strategy.apply(context.Background(), req)
	require.Error(t, err)
	assert.True(t, util.IsCode(err, "UPSTREAM_ERROR"))
	assert.Empty(t, req.Header.Get("Authorization"))
}
