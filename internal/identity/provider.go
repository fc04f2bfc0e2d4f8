package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid identity token")
	ErrUserNotFound = errors.New("identity not found")
	ErrNoWallet     = errors.New("identity has no linked wallet")
)

// Provider verifies access tokens and resolves the wallet linked to an identity
type Provider interface {
	// Verify checks token and returns the stable identity it was issued to
	Verify(ctx context.Context, token string) (string, error)
	// Lookup returns the wallet address linked to identity. ErrNoWallet is
	// returned when the identity exists but has no usable wallet.
	Lookup(ctx context.Context, identity string) (string, error)
}
