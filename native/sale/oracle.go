package sale

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// RoundData is the latest reading reported by a price feed: the signed
// answer in the feed's own decimals plus a human-readable description of
// the pair (e.g. "NHB / USD").
type RoundData struct {
	Answer      *big.Int
	Decimals    uint8
	Description string
}

// PriceFeed resolves the latest round data for a configured feed address.
// Implementations are external collaborators; the engine only requires that
// Decimals stay stable for a given address within one pricing computation
// and never calls Latest for the zero address.
type PriceFeed interface {
	Latest(ctx context.Context, feed FeedAddress) (RoundData, error)
}

// ManualFeed provides an in-memory feed implementation used for tests and
// local development.
type ManualFeed struct {
	mu     sync.RWMutex
	rounds map[FeedAddress]RoundData
}

// NewManualFeed constructs an empty manual feed instance.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{rounds: make(map[FeedAddress]RoundData)}
}

// Set stores the provided round data for the feed address.
func (m *ManualFeed) Set(feed FeedAddress, answer *big.Int, decimals uint8, description string) {
	if m == nil || answer == nil {
		return
	}
	m.mu.Lock()
	m.rounds[feed] = RoundData{
		Answer:      new(big.Int).Set(answer),
		Decimals:    decimals,
		Description: description,
	}
	m.mu.Unlock()
}

// Latest implements the PriceFeed interface.
func (m *ManualFeed) Latest(_ context.Context, feed FeedAddress) (RoundData, error) {
	if m == nil {
		return RoundData{}, ErrFeedUnavailable
	}
	m.mu.RLock()
	round, ok := m.rounds[feed]
	m.mu.RUnlock()
	if !ok {
		return RoundData{}, fmt.Errorf("%w: no round for feed %x", ErrFeedUnavailable, feed[:])
	}
	return RoundData{
		Answer:      new(big.Int).Set(round.Answer),
		Decimals:    round.Decimals,
		Description: round.Description,
	}, nil
}
