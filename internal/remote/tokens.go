package remote

import "context"

// StaticTokens is a TokenProvider backed by a fixed token, for
// deployments where the caller manages token lifetime externally.
// Refresh returns the same token, so a 401 surfaces as an auth error
// rather than retrying forever.
type StaticTokens string

func (t StaticTokens) Token(ctx context.Context) (string, error)   { return string(t), nil }
func (t StaticTokens) Refresh(ctx context.Context) (string, error) { return string(t), nil }
