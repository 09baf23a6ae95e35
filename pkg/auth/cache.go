// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/stacklok/ghgate/pkg/github"
)

// memberRefreshInterval is how long a fetched team member list is trusted
// before the next lookup refreshes it.
const memberRefreshInterval = 10 * time.Minute

// membershipCache is a single-slot TTL cache for the member list of the one
// configured team. The mutex is held across the refresh so concurrent stale
// reads share a single provider call.
type membershipCache struct {
	mu          sync.Mutex
	members     []string
	lastRefresh time.Time
	interval    time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

func newMembershipCache(interval time.Duration) *membershipCache {
	return &membershipCache{
		interval: interval,
		now:      time.Now,
	}
}

// members returns the cached member list, refreshing it via the client when
// the interval has elapsed. The refresh timestamp is stamped when the refresh
// is initiated, not on completion: a failed refresh leaves the cache marked
// fresh and the error propagates, so callers treat the authorization as
// undetermined rather than falling back to stale data.
func (c *membershipCache) getMembers(
	ctx context.Context,
	client *github.Client,
	teamID int64,
	creds github.Credentials,
) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(c.lastRefresh) < c.interval {
		return c.members, nil
	}

	c.lastRefresh = c.now()
	members, err := client.FetchTeamMembers(ctx, teamID, creds)
	if err != nil {
		return nil, err
	}
	c.members = members
	return c.members, nil
}
