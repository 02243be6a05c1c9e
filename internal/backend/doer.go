// internal/backend/doer.go
//
// Seam between proxy routes and the backend client.  Tests swap in an
// httptest-backed *Client or a stub.

package backend

import "context"

// Doer is the slice of *Client used by proxy routes and the role gate.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

var _ Doer = (*Client)(nil)
