// Package gas selects a sponsor-owned coin object to pay for a
// sponsored transaction. The selector queries the node for the
// sponsor's coins of the configured type and picks the first one whose
// balance clears the minimum threshold, so small dust coins left over
// from previous sponsorships are skipped rather than causing dry-run
// failures mid-pipeline.
package gas

import (
	"context"
	"errors"
	"fmt"

	"github.com/drsui/gas-station/internal/app/domain/txn"
	"github.com/drsui/gas-station/internal/chain"
)

// ErrNoEligibleCoin is returned when the sponsor owns no coin of the
// required type with a balance at or above the configured minimum.
var ErrNoEligibleCoin = errors.New("no eligible fee payment coin")

// CoinLister is the slice of the chain client the selector needs.
type CoinLister interface {
	GetCoins(ctx context.Context, owner, coinType string) ([]chain.Coin, error)
	GetBalance(ctx context.Context, owner, coinType string) (chain.Balance, error)
}

// Selector picks fee payment objects for the sponsor account.
type Selector struct {
	node       CoinLister
	sponsor    string
	coinType   string
	minBalance uint64
}

// NewSelector builds a selector for the given sponsor address.
func NewSelector(node CoinLister, sponsorAddr, coinType string, minBalance uint64) *Selector {
	return &Selector{
		node:       node,
		sponsor:    sponsorAddr,
		coinType:   coinType,
		minBalance: minBalance,
	}
}

// Select returns a reference to the first sponsor coin whose balance is
// at least the configured minimum. Coin order follows the node's
// listing order, which keeps selection deterministic for a given chain
// state.
func (s *Selector) Select(ctx context.Context) (*txn.ObjectRef, error) {
	coins, err := s.node.GetCoins(ctx, s.sponsor, s.coinType)
	if err != nil {
		return nil, fmt.Errorf("listing sponsor coins: %w", err)
	}
	for _, c := range coins {
		if c.Balance >= s.minBalance {
			return &txn.ObjectRef{
				ObjectID: c.ObjectID,
				Version:  c.Version,
				Digest:   c.Digest,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %d coins checked, none at or above %d", ErrNoEligibleCoin, len(coins), s.minBalance)
}

// RemainingBalance reports the sponsor's total balance of the fee coin
// type. Used to stamp receipts and feed the balance gauge.
func (s *Selector) RemainingBalance(ctx context.Context) (uint64, error) {
	bal, err := s.node.GetBalance(ctx, s.sponsor, s.coinType)
	if err != nil {
		return 0, fmt.Errorf("fetching sponsor balance: %w", err)
	}
	return bal.TotalBalance, nil
}
