// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the request-authentication gate: session cookie
// validation, the GitHub OAuth code exchange, and the authorization checks
// that decide whether a resolved login may pass.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/ghgate/pkg/github"
)

// Configuration errors, distinct from authorization denial.
var (
	// ErrNoChecksConfigured is returned when authorization is evaluated
	// with neither users, team, nor organization configured.
	ErrNoChecksConfigured = errors.New("no authorization checks configured: add users, team, or organization")

	// ErrTeamRequiresOrganization is returned when a team is configured
	// without the organization it belongs to.
	ErrTeamRequiresOrganization = errors.New("the organization is required to validate the team")
)

// Config is the full configuration surface of the gate. It is supplied once
// at construction and not mutated afterwards.
type Config struct {
	// ClientID and ClientSecret identify the GitHub OAuth application.
	ClientID     string
	ClientSecret string

	// Secret signs session cookies. When empty a random per-process
	// secret is generated, which invalidates previously issued sessions
	// on restart.
	Secret string

	// UserAgent is sent on every provider call. Defaults to
	// github.DefaultUserAgent.
	UserAgent string

	// Users is the explicit allow-list of GitHub logins.
	Users []string

	// Team and Organization gate on membership of one team within one
	// organization. Team requires Organization.
	Team         string
	Organization string

	// Credentials enables privileged team-member enumeration; without
	// them the team check falls back to the user-scoped teams endpoint.
	Credentials *github.Credentials

	// CookieMaxAge sets the session cookie expiry. Zero means a session
	// cookie with no explicit expiry.
	CookieMaxAge time.Duration

	// AutoLogin redirects unauthenticated requests to the provider's
	// authorize URL instead of passing them through unauthenticated.
	AutoLogin bool
}

// Validate fails fast on invalid configuration combinations.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if c.Team != "" && c.Organization == "" {
		return ErrTeamRequiresOrganization
	}
	return nil
}

// Scope returns the OAuth scope to request: team membership checks without
// static credentials need the user-scoped teams endpoint, everything else
// works with public data.
func (c *Config) Scope() string {
	if c.Team != "" && c.Credentials == nil {
		return "user"
	}
	return "public"
}
