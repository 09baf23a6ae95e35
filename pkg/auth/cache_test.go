// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/ghgate/pkg/github"
)

func newMemberServer(t *testing.T, calls *atomic.Int64, body string) *github.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return github.NewClient("id", "secret",
		github.WithBaseURLs(server.URL, server.URL),
		github.WithHTTPClient(server.Client()),
	)
}

func TestMembershipCache_Freshness(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	client := newMemberServer(t, &calls, `[{"login":"alice"},{"login":"carol"}]`)
	creds := github.Credentials{User: "svc", Pass: "hunter2"}

	now := time.Now()
	cache := newMembershipCache(10 * time.Minute)
	cache.now = func() time.Time { return now }

	// Cold cache: one provider call.
	members, err := cache.getMembers(context.Background(), client, 42, creds)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, members)
	assert.Equal(t, int64(1), calls.Load())

	// Within the interval: served from cache.
	now = now.Add(9 * time.Minute)
	members, err = cache.getMembers(context.Background(), client, 42, creds)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, members)
	assert.Equal(t, int64(1), calls.Load())

	// After the interval: refreshed.
	now = now.Add(2 * time.Minute)
	_, err = cache.getMembers(context.Background(), client, 42, creds)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestMembershipCache_FailedRefreshPropagates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	client := github.NewClient("id", "secret",
		github.WithBaseURLs(server.URL, server.URL),
		github.WithHTTPClient(server.Client()),
	)

	now := time.Now()
	cache := newMembershipCache(10 * time.Minute)
	cache.now = func() time.Time { return now }

	_, err := cache.getMembers(context.Background(), client, 42, github.Credentials{})
	require.Error(t, err)

	// The timestamp was stamped when the refresh was initiated, so the
	// next call inside the interval does not retry.
	_, err = cache.getMembers(context.Background(), client, 42, github.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}
