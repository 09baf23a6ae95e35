// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package github is a minimal client for the handful of GitHub endpoints the
// authentication gate needs: the OAuth code exchange, the authenticated user
// profile, and team/organization membership lookups.
//
// Note: This client is designed for GitHub.com only, not GitHub Enterprise
// Server; the base URLs are overridable for testing.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/stacklok/ghgate/pkg/logger"
	"github.com/stacklok/ghgate/pkg/networking"
)

// DefaultUserAgent is sent on every outbound call when no user agent is
// configured.
const DefaultUserAgent = "github-auth"

const (
	defaultAPIBaseURL   = "https://api.github.com"
	defaultOAuthBaseURL = "https://github.com"
)

// maxResponseSize bounds provider response bodies. 64KB is more than enough
// for any of the endpoints this client talks to.
const maxResponseSize = 64 * 1024

// Credentials are static basic-auth credentials for privileged team-member
// enumeration.
type Credentials struct {
	User string
	Pass string
}

// TeamMembership is one entry of the authenticated user's team list.
type TeamMembership struct {
	Slug    string `json:"slug"`
	OrgName string `json:"-"`
}

// Client performs the outbound calls to GitHub. All methods take a context
// and set the configured User-Agent header.
type Client struct {
	client       *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	apiBaseURL   string
	oauthBaseURL string
	rateLimiter  *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Client) {
		g.client = c
	}
}

// WithUserAgent sets the User-Agent header sent on every call.
func WithUserAgent(ua string) Option {
	return func(g *Client) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithBaseURLs overrides the API and OAuth base URLs (for testing).
func WithBaseURLs(apiBaseURL, oauthBaseURL string) Option {
	return func(g *Client) {
		if apiBaseURL != "" {
			g.apiBaseURL = strings.TrimSuffix(apiBaseURL, "/")
		}
		if oauthBaseURL != "" {
			g.oauthBaseURL = strings.TrimSuffix(oauthBaseURL, "/")
		}
	}
}

// NewClient creates a GitHub client for the given OAuth application.
func NewClient(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    DefaultUserAgent,
		apiBaseURL:   defaultAPIBaseURL,
		oauthBaseURL: defaultOAuthBaseURL,
		// GitHub allows 5,000 requests/hour; we rate limit locally to
		// prevent abuse.
		rateLimiter: rate.NewLimiter(100, 200),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = networking.NewHttpClientBuilder().Build()
	}
	return c
}

// AuthorizeURL returns the provider's authorize URL for the given scope.
func (c *Client) AuthorizeURL(scope string) string {
	return fmt.Sprintf("%s/login/oauth/authorize?client_id=%s&scope=%s",
		c.oauthBaseURL, url.QueryEscape(c.clientID), url.QueryEscape(scope))
}

// ExchangeCode trades an OAuth authorization code for an access token.
// GitHub answers this endpoint with a query-string encoded body, not JSON.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauthBaseURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, _, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", &ProtocolError{Operation: "token exchange", Body: string(body), Err: err}
	}
	token := values.Get("access_token")
	if token == "" {
		return "", &ProtocolError{Operation: "token exchange", Body: string(body)}
	}
	return token, nil
}

// FetchUser resolves the login of the user the access token belongs to.
func (c *Client) FetchUser(ctx context.Context, accessToken string) (string, error) {
	body, err := c.get(ctx, "/user?access_token="+url.QueryEscape(accessToken), nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user: %w", err)
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", &ProtocolError{Operation: "fetch user", Body: string(body), Err: err}
	}
	return user.Login, nil
}

// FetchUserTeams lists the teams the token's user belongs to. A non-array
// response (a rate-limit or error object) is reported as an empty list, not a
// protocol error; the caller treats it as "not authorized".
func (c *Client) FetchUserTeams(ctx context.Context, accessToken string) ([]TeamMembership, error) {
	body, err := c.get(ctx, "/user/teams?access_token="+url.QueryEscape(accessToken), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user teams: %w", err)
	}

	if !isJSONArray(body) {
		logger.Debugw("non-array response from user teams endpoint", "body", string(body))
		return nil, nil
	}

	var raw []struct {
		Slug         string `json:"slug"`
		Organization struct {
			Login string `json:"login"`
		} `json:"organization"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProtocolError{Operation: "fetch user teams", Body: string(body), Err: err}
	}

	teams := make([]TeamMembership, 0, len(raw))
	for _, t := range raw {
		teams = append(teams, TeamMembership{Slug: t.Slug, OrgName: t.Organization.Login})
	}
	return teams, nil
}

// FetchUserOrgs lists the organization logins the token's user belongs to.
// Non-array responses are reported as an empty list, as with FetchUserTeams.
func (c *Client) FetchUserOrgs(ctx context.Context, accessToken string) ([]string, error) {
	body, err := c.get(ctx, "/user/orgs?access_token="+url.QueryEscape(accessToken), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user orgs: %w", err)
	}

	if !isJSONArray(body) {
		logger.Debugw("non-array response from user orgs endpoint", "body", string(body))
		return nil, nil
	}

	var raw []struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProtocolError{Operation: "fetch user orgs", Body: string(body), Err: err}
	}

	orgs := make([]string, 0, len(raw))
	for _, o := range raw {
		orgs = append(orgs, o.Login)
	}
	return orgs, nil
}

// FetchTeamID resolves the numeric id of a team by name within an
// organization, using basic credentials. If the organization has several
// teams with the same name the first match wins.
func (c *Client) FetchTeamID(ctx context.Context, org, team string, creds Credentials) (int64, error) {
	body, err := c.get(ctx, "/orgs/"+url.PathEscape(org)+"/teams", &creds)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch org teams: %w", err)
	}

	var teams []struct {
		Name string `json:"name"`
		ID   int64  `json:"id"`
	}
	if err := json.Unmarshal(body, &teams); err != nil {
		return 0, &ProtocolError{Operation: "fetch org teams", Body: string(body), Err: err}
	}

	for _, t := range teams {
		if t.Name == team {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("team %q not found in organization %q", team, org)
}

// FetchTeamMembers lists the logins of a team's members, using basic
// credentials.
func (c *Client) FetchTeamMembers(ctx context.Context, teamID int64, creds Credentials) ([]string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/teams/%d/members", teamID), &creds)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch team members: %w", err)
	}

	var members []struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, &ProtocolError{Operation: "fetch team members", Body: string(body), Err: err}
	}

	logins := make([]string, 0, len(members))
	for _, m := range members {
		logins = append(logins, m.Login)
	}
	return logins, nil
}

// get performs a GET against the API base URL. Credentialed calls report a
// non-2xx status as ErrBadCredentials.
func (c *Client) get(ctx context.Context, path string, creds *Credentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if creds != nil {
		req.SetBasicAuth(creds.User, creds.Pass)
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if creds != nil && (status < 200 || status >= 300) {
		return nil, fmt.Errorf("%w: status %d", ErrBadCredentials, status)
	}
	return body, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to provider failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read provider response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func isJSONArray(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("["))
}
