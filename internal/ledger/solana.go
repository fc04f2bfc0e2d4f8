package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var (
	ErrInvalidAddress    = errors.New("invalid ledger address")
	ErrMalformedResponse = errors.New("malformed ledger response")
)

// Querier lists the token amounts held by owner for one mint, in base units.
type Querier interface {
	AccountsByOwner(ctx context.Context, owner, mint string) ([]decimal.Decimal, error)
}

// SolanaClient reads SPL token accounts from a Solana RPC node
type SolanaClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

var _ Querier = (*SolanaClient)(nil)

func NewSolanaClient(endpoint, commitment string, client *http.Client) *SolanaClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SolanaClient{
		rpc: rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient: client,
		})),
		commitment: rpc.CommitmentType(commitment),
	}
}

// AccountsByOwner calls getTokenAccountsByOwner with jsonParsed encoding and
// returns the raw tokenAmount.amount of every account.
func (c *SolanaClient) AccountsByOwner(ctx context.Context, owner, mint string) ([]decimal.Decimal, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("%w: owner %q: %v", ErrInvalidAddress, owner, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("%w: mint %q: %v", ErrInvalidAddress, mint, err)
	}

	out, err := c.rpc.GetTokenAccountsByOwner(ctx, ownerKey,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{
			Encoding:   solana.EncodingJSONParsed,
			Commitment: c.commitment,
		})
	if err != nil {
		return nil, fmt.Errorf("getTokenAccountsByOwner failed: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty result", ErrMalformedResponse)
	}

	amounts := make([]decimal.Decimal, 0, len(out.Value))
	for _, acct := range out.Value {
		if acct == nil || acct.Account.Data == nil {
			return nil, fmt.Errorf("%w: account without data", ErrMalformedResponse)
		}
		amount, err := parseTokenAmount(acct.Account.Data.GetRawJSON())
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acct.Pubkey, err)
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}

// parseTokenAmount reads parsed.info.tokenAmount.amount from jsonParsed
// account data. The amount must be a non-negative integer string.
func parseTokenAmount(data []byte) (decimal.Decimal, error) {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return decimal.Zero, fmt.Errorf("%w: account data is not parsed json", ErrMalformedResponse)
	}
	raw := gjson.GetBytes(data, "parsed.info.tokenAmount.amount")
	if raw.Type != gjson.String {
		return decimal.Zero, fmt.Errorf("%w: no token amount", ErrMalformedResponse)
	}
	amount, err := decimal.NewFromString(raw.Str)
	if err != nil || amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("%w: bad amount %q", ErrMalformedResponse, raw.Str)
	}
	return amount, nil
}
