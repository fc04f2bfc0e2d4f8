package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/amoylab/tokengate/internal/common/cnst"
	"github.com/amoylab/tokengate/internal/common/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// chainSolana is the chain_type Privy reports for Solana wallets
const chainSolana = "solana"

// PrivyClaims are the claims carried by a Privy access token
type PrivyClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// PrivyProvider verifies Privy access tokens locally with the app's
// verification key and resolves wallets through the Privy REST API.
type PrivyProvider struct {
	logger  *zap.Logger
	cfg     config.PrivyConfig
	key     *ecdsa.PublicKey
	client  *http.Client
	parser  *jwt.Parser
	baseURL string
}

var _ Provider = (*PrivyProvider)(nil)

// NewPrivyProvider creates a Privy provider. client may be nil.
func NewPrivyProvider(logger *zap.Logger, cfg config.PrivyConfig, client *http.Client) (*PrivyProvider, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, cnst.ErrMissingPrivyCredentials
	}
	if cfg.VerificationKey == "" {
		return nil, cnst.ErrMissingVerificationKey
	}
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(cfg.VerificationKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse privy verification key: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &PrivyProvider{
		logger: logger.Named("identity.privy"),
		cfg:    cfg,
		key:    key,
		client: client,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.AppID),
			jwt.WithExpirationRequired(),
		),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Verify validates the token signature and claims and returns the subject
func (p *PrivyProvider) Verify(_ context.Context, token string) (string, error) {
	claims := &PrivyClaims{}
	_, err := p.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.key, nil
	})
	if err != nil {
		p.logger.Debug("privy token rejected", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Lookup fetches the user and returns its wallet address. A Solana wallet is
// preferred over wallets on other chains.
func (p *PrivyProvider) Lookup(ctx context.Context, identity string) (string, error) {
	endpoint := p.baseURL + "/api/v1/users/" + url.PathEscape(identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create privy request: %w", err)
	}
	req.SetBasicAuth(p.cfg.AppID, p.cfg.AppSecret)
	req.Header.Set("privy-app-id", p.cfg.AppID)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("privy user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read privy response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrUserNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("privy user lookup returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("privy user lookup returned invalid json")
	}
	return walletAddress(body)
}

// walletAddress picks the wallet from a Privy user document
func walletAddress(user []byte) (string, error) {
	var fallback string
	for _, acct := range gjson.GetBytes(user, "linked_accounts").Array() {
		if acct.Get("type").String() != "wallet" {
			continue
		}
		addr := acct.Get("address").String()
		if addr == "" {
			continue
		}
		if acct.Get("chain_type").String() == chainSolana {
			return addr, nil
		}
		if fallback == "" {
			fallback = addr
		}
	}
	if fallback == "" {
		return "", ErrNoWallet
	}
	return fallback, nil
}
