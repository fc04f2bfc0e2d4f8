package cnst

import "errors"

var (
	// ErrMissingPrivyCredentials is returned when the Privy app id or secret is empty
	ErrMissingPrivyCredentials = errors.New("identity.privy.app_id and identity.privy.app_secret are required")
	// ErrMissingVerificationKey is returned when no key is configured to verify identity tokens
	ErrMissingVerificationKey = errors.New("identity.privy.verification_key is required")
	// ErrMissingMint is returned when eligibility is enabled without a token mint
	ErrMissingMint = errors.New("ledger.mint is required when eligibility is enabled")
	// ErrMissingRPCURL is returned when eligibility is enabled without a ledger endpoint
	ErrMissingRPCURL = errors.New("ledger.rpc_url is required when eligibility is enabled")
	// ErrPublishOnly is returned when a publish-only transport is used as a subscriber
	ErrPublishOnly = errors.New("transport is publish only")
)
