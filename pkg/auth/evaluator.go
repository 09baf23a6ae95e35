// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/ghgate/pkg/github"
)

// check is one configured authorization dimension, evaluated independently
// of the others.
type check func(ctx context.Context) (bool, error)

// evaluator builds and runs the configured authorization checks for one
// resolved login.
type evaluator struct {
	cfg    *Config
	client *github.Client
	cache  *membershipCache
}

func newEvaluator(cfg *Config, client *github.Client) *evaluator {
	return &evaluator{
		cfg:    cfg,
		client: client,
		cache:  newMembershipCache(memberRefreshInterval),
	}
}

// evaluate runs every configured check concurrently and combines the results
// with logical AND. The first check error aborts the evaluation; a check
// returning false is not an error. Zero configured checks is a configuration
// error, never an authorization decision.
func (e *evaluator) evaluate(ctx context.Context, accessToken, login string) (bool, error) {
	checks := e.buildChecks(accessToken, login)
	if len(checks) == 0 {
		return false, ErrNoChecksConfigured
	}

	results := make([]bool, len(checks))
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			ok, err := c(ctx)
			if err != nil {
				return err
			}
			results[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *evaluator) buildChecks(accessToken, login string) []check {
	var checks []check
	if len(e.cfg.Users) > 0 {
		checks = append(checks, func(context.Context) (bool, error) {
			return slices.Contains(e.cfg.Users, login), nil
		})
	}
	if e.cfg.Team != "" {
		checks = append(checks, func(ctx context.Context) (bool, error) {
			return e.checkTeam(ctx, accessToken, login)
		})
	}
	if e.cfg.Organization != "" {
		checks = append(checks, func(ctx context.Context) (bool, error) {
			return e.checkOrganization(ctx, accessToken)
		})
	}
	return checks
}

// checkTeam decides team membership. With static credentials the team id is
// resolved fresh every evaluation and the member list comes from the TTL
// cache; without them the user-scoped teams endpoint is consulted, and both
// the team slug and the organization login must match so a same-named team in
// another org cannot pass.
func (e *evaluator) checkTeam(ctx context.Context, accessToken, login string) (bool, error) {
	if e.cfg.Organization == "" {
		return false, ErrTeamRequiresOrganization
	}

	if e.cfg.Credentials != nil {
		teamID, err := e.client.FetchTeamID(ctx, e.cfg.Organization, e.cfg.Team, *e.cfg.Credentials)
		if err != nil {
			return false, err
		}
		members, err := e.cache.getMembers(ctx, e.client, teamID, *e.cfg.Credentials)
		if err != nil {
			return false, err
		}
		return slices.Contains(members, login), nil
	}

	teams, err := e.client.FetchUserTeams(ctx, accessToken)
	if err != nil {
		return false, err
	}
	for _, t := range teams {
		if t.Slug == e.cfg.Team && t.OrgName == e.cfg.Organization {
			return true, nil
		}
	}
	return false, nil
}

func (e *evaluator) checkOrganization(ctx context.Context, accessToken string) (bool, error) {
	orgs, err := e.client.FetchUserOrgs(ctx, accessToken)
	if err != nil {
		return false, err
	}
	return slices.Contains(orgs, e.cfg.Organization), nil
}
