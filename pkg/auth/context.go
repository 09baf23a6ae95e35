// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

// Result is the outcome of the gate for one request, carried in the request
// context for downstream handlers.
type Result struct {
	// Authenticated reports whether the caller passed authentication and
	// authorization.
	Authenticated bool

	// Login is the resolved GitHub login. Empty when Authenticated is
	// false.
	Login string
}

// ResultContextKey is the key used to store the Result in the request context.
//
// Using an empty struct as the key prevents collisions with other context
// keys, as each empty struct type is distinct even if they have the same name
// in different packages.
type ResultContextKey struct{}

// WithResult stores a Result in the context. If result is nil, the original
// context is returned unchanged.
func WithResult(ctx context.Context, result *Result) context.Context {
	if result == nil {
		return ctx
	}
	return context.WithValue(ctx, ResultContextKey{}, result)
}

// ResultFromContext retrieves the gate's Result from the context.
// Returns the result and true if present, nil and false otherwise.
//
// Example:
//
//	result, ok := auth.ResultFromContext(r.Context())
//	if !ok || !result.Authenticated {
//	    http.Error(w, "forbidden", http.StatusForbidden)
//	    return
//	}
func ResultFromContext(ctx context.Context) (*Result, bool) {
	result, ok := ctx.Value(ResultContextKey{}).(*Result)
	return result, ok
}
