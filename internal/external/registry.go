package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// ErrItemNotFound is returned when the registry has no record of an item.
var ErrItemNotFound = errors.New("item not found")

// RegistryClient calls the item registry.
type RegistryClient struct {
	c *client
}

// NewRegistryClient creates a client for the registry gateway at url.
// caller is the identity the engine acts as.
func NewRegistryClient(url, caller string, timeout time.Duration) *RegistryClient {
	return &RegistryClient{c: newClient(url, caller, timeout)}
}

type itemToken struct {
	TokenID  string              `json:"token_id"`
	OwnerID  string              `json:"owner_id"`
	Metadata jsoniter.RawMessage `json:"metadata"`
}

// DescribeItem returns the current owner of itemID and its raw metadata.
func (r *RegistryClient) DescribeItem(ctx context.Context, itemID string) (owner string, metadata []byte, err error) {
	var tok itemToken
	found, err := r.c.call(ctx, "nft_token", map[string]string{"token_id": itemID}, &tok)
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return tok.OwnerID, []byte(tok.Metadata), nil
}

// TransferItem moves one item to the receiver.
func (r *RegistryClient) TransferItem(ctx context.Context, itemID, to string) error {
	_, err := r.c.call(ctx, "nft_transfer", map[string]string{
		"receiver_id": to,
		"token_id":    itemID,
	}, nil)
	return err
}

// BatchTransferItems moves every item to the receiver in one call.
func (r *RegistryClient) BatchTransferItems(ctx context.Context, itemIDs []string, to string) error {
	pairs := make([][2]string, len(itemIDs))
	for i, id := range itemIDs {
		pairs[i] = [2]string{id, to}
	}
	_, err := r.c.call(ctx, "nft_batch_transfer", map[string]interface{}{"token_ids": pairs}, nil)
	return err
}
