// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/ghgate/pkg/github"
	"github.com/stacklok/ghgate/pkg/logger"
	"github.com/stacklok/ghgate/pkg/session"
)

// timeNow is replaceable for tests.
var timeNow = time.Now

// CookieName is the name of the session cookie carrying the signed login.
const CookieName = "gh_uname"

// Gate authenticates inbound requests: a valid session cookie passes without
// any network call, otherwise an OAuth authorization code from the query
// string is exchanged and the configured authorization checks decide the
// outcome. Denial is not an error; the request continues with
// Authenticated=false and downstream handlers decide what to do with it.
type Gate struct {
	cfg      *Config
	client   *github.Client
	codec    *session.Codec
	eval     *evaluator
	loginURL string
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClient injects a pre-built GitHub client (for testing).
func WithClient(client *github.Client) GateOption {
	return func(g *Gate) {
		g.client = client
	}
}

// NewGate validates the configuration, applies defaults, and builds the gate.
func NewGate(cfg *Config, opts ...GateOption) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate configuration: %w", err)
	}

	if cfg.Secret == "" {
		secret, err := session.GenerateSecret()
		if err != nil {
			return nil, err
		}
		cfg.Secret = secret
		logger.Warn("No signing secret configured; sessions will not survive a restart")
	}

	g := &Gate{
		cfg:   cfg,
		codec: session.NewCodec(cfg.Secret),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = github.NewClient(cfg.ClientID, cfg.ClientSecret,
			github.WithUserAgent(cfg.UserAgent))
	}
	g.eval = newEvaluator(cfg, g.client)
	g.loginURL = g.client.AuthorizeURL(cfg.Scope())

	return g, nil
}

// LoginURL returns the provider's authorize URL for this gate.
func (g *Gate) LoginURL() string {
	return g.loginURL
}

// LoginHandler returns a handler that unconditionally redirects to the
// provider's authorize URL.
func (g *Gate) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, g.loginURL, http.StatusFound)
	}
}

// Middleware wraps the gate as standard HTTP middleware. The authentication
// outcome is attached to the request context; provider or configuration
// errors abort the request with 502.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, done, err := g.Authenticate(w, r)
			if err != nil {
				logger.Errorw("authentication failed", "error", err)
				http.Error(w, "authentication failed", http.StatusBadGateway)
				return
			}
			if done {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithResult(r.Context(), result)))
		})
	}
}

// Authenticate runs the gate for one request. It returns the authentication
// result, or done=true when a redirect response has already been written, or
// a fatal provider/configuration error. Callers embedding the gate in their
// own handler chain attach the result to the request context themselves;
// Middleware does all of this.
func (g *Gate) Authenticate(w http.ResponseWriter, r *http.Request) (*Result, bool, error) {
	// Fast path: a non-forged session cookie is the authenticated login.
	if cookie, err := r.Cookie(CookieName); err == nil {
		if login, ok := g.codec.Unsign(cookie.Value); ok {
			return &Result{Authenticated: true, Login: login}, false, nil
		}
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		if g.cfg.AutoLogin {
			http.Redirect(w, r, g.loginURL, http.StatusFound)
			return nil, true, nil
		}
		return &Result{}, false, nil
	}

	ctx := r.Context()
	accessToken, err := g.client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, false, err
	}

	login, err := g.client.FetchUser(ctx, accessToken)
	if err != nil {
		return nil, false, err
	}

	authorized, err := g.eval.evaluate(ctx, accessToken, login)
	if err != nil {
		return nil, false, err
	}
	if !authorized {
		logger.Debugw("authorization denied", "login", login)
		return &Result{}, false, nil
	}

	g.setSessionCookie(w, login)
	return &Result{Authenticated: true, Login: login}, false, nil
}

func (g *Gate) setSessionCookie(w http.ResponseWriter, login string) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    g.codec.Sign(login),
		Path:     "/",
		HttpOnly: true,
	}
	if g.cfg.CookieMaxAge > 0 {
		cookie.Expires = timeNow().Add(g.cfg.CookieMaxAge)
	}
	http.SetCookie(w, cookie)
}
