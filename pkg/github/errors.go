// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"errors"
	"fmt"
)

// ErrBadCredentials is returned when a credentialed API call is rejected with
// a non-2xx status. It is distinct from a parse failure so callers can tell a
// misconfigured service account apart from a broken response.
var ErrBadCredentials = errors.New("bad credentials")

// ProtocolError is returned when a provider response that should be JSON does
// not parse. The raw body is carried along because GitHub error pages can
// masquerade as 200 responses and the body is the only diagnostic available.
type ProtocolError struct {
	Operation string
	Body      string
	Err       error
}

// Error returns the error message
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response from provider: %s", e.Operation, e.Body)
}

// Unwrap returns the underlying parse error
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
