// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/ghgate/pkg/github"
	"github.com/stacklok/ghgate/pkg/session"
)

// gateFixture wires a gate to a mock provider and counts provider calls.
type gateFixture struct {
	gate  *Gate
	calls *atomic.Int64
}

func newGateFixture(t *testing.T, cfg *Config, provider *fakeProvider, login string) *gateFixture {
	t.Helper()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("access_token=gho_abc123&scope=user&token_type=bearer"))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"login":"` + login + `"}`))
	})
	if provider != nil {
		mux.HandleFunc("/user/teams", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(provider.userTeams))
		})
		mux.HandleFunc("/user/orgs", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(provider.userOrgs))
		})
		mux.HandleFunc("/orgs/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(provider.orgTeams))
		})
		mux.HandleFunc("/teams/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(provider.teamMembers))
		})
	}

	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		mux.ServeHTTP(w, r)
	})
	server := httptest.NewServer(counting)
	t.Cleanup(server.Close)

	if cfg.ClientID == "" {
		cfg.ClientID = "test-id"
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = "test-secret"
	}

	client := github.NewClient(cfg.ClientID, cfg.ClientSecret,
		github.WithBaseURLs(server.URL, server.URL),
		github.WithHTTPClient(server.Client()),
	)
	gate, err := NewGate(cfg, WithClient(client))
	require.NoError(t, err)

	return &gateFixture{gate: gate, calls: &calls}
}

// run sends a request through the gate's middleware and reports the result
// seen by the downstream handler (nil when the handler never ran).
func (f *gateFixture) run(t *testing.T, req *http.Request) (*Result, *httptest.ResponseRecorder) {
	t.Helper()

	var seen *Result
	handler := f.gate.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		result, ok := ResultFromContext(r.Context())
		require.True(t, ok)
		seen = result
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec
}

func sessionCookie(secret, login string) *http.Cookie {
	return &http.Cookie{Name: CookieName, Value: session.NewCodec(secret).Sign(login)}
}

func TestGate_AllowListedUserIsAuthenticated(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Users: []string{"alice"}, Secret: "s3cret"}, nil, "alice")

	result, rec := f.run(t, httptest.NewRequest(http.MethodGet, "/?code=the-code", nil))
	require.NotNil(t, result)
	assert.True(t, result.Authenticated)
	assert.Equal(t, "alice", result.Login)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)

	login, ok := session.NewCodec("s3cret").Unsign(cookies[0].Value)
	require.True(t, ok)
	assert.Equal(t, "alice", login)
}

func TestGate_DeniedUserContinuesUnauthenticated(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Users: []string{"alice"}, Secret: "s3cret"}, nil, "bob")

	result, rec := f.run(t, httptest.NewRequest(http.MethodGet, "/?code=the-code", nil))
	require.NotNil(t, result)
	assert.False(t, result.Authenticated)
	assert.Empty(t, result.Login)
	assert.Empty(t, rec.Result().Cookies())
}

func TestGate_ValidCookieSkipsProvider(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Users: []string{"alice"}, Secret: "s3cret"}, nil, "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie("s3cret", "alice"))

	result, _ := f.run(t, req)
	require.NotNil(t, result)
	assert.True(t, result.Authenticated)
	assert.Equal(t, "alice", result.Login)
	assert.Equal(t, int64(0), f.calls.Load())
}

func TestGate_ForgedCookieFallsThrough(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Users: []string{"alice"}, Secret: "s3cret"}, nil, "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie("forged-secret", "alice"))

	result, _ := f.run(t, req)
	require.NotNil(t, result)
	assert.False(t, result.Authenticated)
}

func TestGate_NoCodeNoAutologin(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Users: []string{"alice"}, Secret: "s3cret"}, nil, "alice")

	result, rec := f.run(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, result)
	assert.False(t, result.Authenticated)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), f.calls.Load())
}

func TestGate_NoCodeAutologinRedirects(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Users: []string{"alice"}, Secret: "s3cret", AutoLogin: true}, nil, "alice")

	result, rec := f.run(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, result, "downstream handler must not run")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, f.gate.LoginURL(), rec.Header().Get("Location"))
}

func TestGate_CredentialedTeamMember(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		orgTeams:    `[{"name":"core","id":42}]`,
		teamMembers: `[{"login":"alice"},{"login":"carol"}]`,
	}
	cfg := &Config{
		Team:         "core",
		Organization: "acme",
		Credentials:  &github.Credentials{User: "svc", Pass: "hunter2"},
		Secret:       "s3cret",
	}
	f := newGateFixture(t, cfg, provider, "alice")

	result, _ := f.run(t, httptest.NewRequest(http.MethodGet, "/?code=the-code", nil))
	require.NotNil(t, result)
	assert.True(t, result.Authenticated)
	assert.Equal(t, "alice", result.Login)
}

func TestGate_NoChecksConfiguredIsAnError(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{Secret: "s3cret"}, nil, "alice")

	result, rec := f.run(t, httptest.NewRequest(http.MethodGet, "/?code=the-code", nil))
	assert.Nil(t, result, "downstream handler must not run")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGate_ProviderFailureIsFatal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// An error page with a 200 status and no token.
		_, _ = w.Write([]byte("error=bad_verification_code"))
	}))
	t.Cleanup(server.Close)

	client := github.NewClient("test-id", "test-secret",
		github.WithBaseURLs(server.URL, server.URL),
		github.WithHTTPClient(server.Client()),
	)
	gate, err := NewGate(&Config{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
		Users:        []string{"alice"},
		Secret:       "s3cret",
	}, WithClient(client))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler := gate.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("downstream handler must not run")
	}))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?code=stale", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGate_CookieMaxAgeSetsExpiry(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, &Config{
		Users:        []string{"alice"},
		Secret:       "s3cret",
		CookieMaxAge: time.Hour,
	}, nil, "alice")

	_, rec := f.run(t, httptest.NewRequest(http.MethodGet, "/?code=the-code", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.False(t, cookies[0].Expires.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), cookies[0].Expires, time.Minute)
}

func TestGate_LoginHandlerRedirects(t *testing.T) {
	t.Parallel()

	gate, err := NewGate(&Config{
		ClientID:     "my-client",
		ClientSecret: "my-secret",
		Users:        []string{"alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/login/oauth/authorize?client_id=my-client&scope=public", gate.LoginURL())

	rec := httptest.NewRecorder()
	gate.LoginHandler()(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, gate.LoginURL(), rec.Header().Get("Location"))
}

func TestNewGate_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "Missing client ID", cfg: &Config{ClientSecret: "s"}},
		{name: "Missing client secret", cfg: &Config{ClientID: "id"}},
		{name: "Team without organization", cfg: &Config{ClientID: "id", ClientSecret: "s", Team: "core"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewGate(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestNewGate_GeneratesSecret(t *testing.T) {
	t.Parallel()

	cfg := &Config{ClientID: "id", ClientSecret: "s", Users: []string{"alice"}}
	_, err := NewGate(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Secret)
}

func TestConfig_Scope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{name: "Users only", cfg: Config{Users: []string{"alice"}}, expected: "public"},
		{name: "Team without credentials", cfg: Config{Team: "core", Organization: "acme"}, expected: "user"},
		{
			name: "Team with credentials",
			cfg: Config{
				Team:         "core",
				Organization: "acme",
				Credentials:  &github.Credentials{User: "svc", Pass: "p"},
			},
			expected: "public",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.cfg.Scope())
		})
	}
}
