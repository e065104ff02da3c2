package external

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// TokenLedgerClient calls the fungible token ledger.
type TokenLedgerClient struct {
	c *client
}

// NewTokenLedgerClient creates a client for the ledger gateway at url.
func NewTokenLedgerClient(url, caller string, timeout time.Duration) *TokenLedgerClient {
	return &TokenLedgerClient{c: newClient(url, caller, timeout)}
}

// TransferTokens pays amount to the receiver. Amounts travel as decimal
// strings so that 128-bit values survive JSON.
func (l *TokenLedgerClient) TransferTokens(ctx context.Context, to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("ft_transfer: amount must be positive")
	}
	_, err := l.c.call(ctx, "ft_transfer", map[string]string{
		"receiver_id": to,
		"amount":      amount.Dec(),
	}, nil)
	return err
}
