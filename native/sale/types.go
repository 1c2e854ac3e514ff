package sale

import "math/big"

// SaleID identifies one independent sale. Many sales coexist in the
// registry; configuration records are created lazily on first write.
type SaleID uint64

// FeedAddress references a Chainlink-style aggregator contract. The zero
// address means "no feed configured".
type FeedAddress [20]byte

// IsZero reports whether the feed address is unset.
func (f FeedAddress) IsZero() bool {
	return f == FeedAddress{}
}

const (
	// NativeAsset is the symbol used for native-unit sale records in events
	// and the daemon API.
	NativeAsset = "NHB"
	// NativeDecimals is the decimal precision of the native value unit.
	NativeDecimals uint8 = 18
	// PegDecimals is the fixed-point precision of USD peg prices and of the
	// normalized oracle rate used during conversion.
	PegDecimals uint8 = 18
)

// AuctionSchedule describes a Dutch auction window. The price starts at
// StartPrice when the window opens and decays to ReservePrice by EndTime.
// Prices are USD values at PegDecimals for peg-auction quotes and asset
// units for fixed-auction quotes; the schedule itself carries no
// denomination.
type AuctionSchedule struct {
	StartTime    uint64
	EndTime      uint64
	StartPrice   *big.Int
	ReservePrice *big.Int
}

// Clone returns a deep copy of the schedule.
func (a *AuctionSchedule) Clone() *AuctionSchedule {
	if a == nil {
		return nil
	}
	return &AuctionSchedule{
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		StartPrice:   cloneBigInt(a.StartPrice),
		ReservePrice: cloneBigInt(a.ReservePrice),
	}
}

// TokenSaleConfig captures the pricing configuration for one (sale, token)
// pair. Zero values mean "not configured": a zero UsdPeggedPrice disables
// peg quotes, a zero FixedPrice disables fixed quotes, the zero feed address
// disables oracle reads and a nil Auction disables auction quotes.
type TokenSaleConfig struct {
	UsdPeggedPrice  *big.Int
	DiscountPercent uint32
	MarkupPercent   uint16
	PriceFeed       FeedAddress
	FixedPrice      *big.Int
	Auction         *AuctionSchedule
}

// Clone returns a deep copy of the config.
func (c *TokenSaleConfig) Clone() *TokenSaleConfig {
	if c == nil {
		return nil
	}
	return &TokenSaleConfig{
		UsdPeggedPrice:  cloneBigInt(c.UsdPeggedPrice),
		DiscountPercent: c.DiscountPercent,
		MarkupPercent:   c.MarkupPercent,
		PriceFeed:       c.PriceFeed,
		FixedPrice:      cloneBigInt(c.FixedPrice),
		Auction:         c.Auction.Clone(),
	}
}

// NativeSaleConfig is the per-sale record for the native value unit. It has
// the same shape as a token config and additionally carries the fixed price
// expressed in native units; the embedded FixedPrice field stays unset for
// native records.
type NativeSaleConfig struct {
	TokenSaleConfig
	FixedNativePrice *big.Int
}

// Clone returns a deep copy of the config.
func (c *NativeSaleConfig) Clone() *NativeSaleConfig {
	if c == nil {
		return nil
	}
	return &NativeSaleConfig{
		TokenSaleConfig:  *c.TokenSaleConfig.Clone(),
		FixedNativePrice: cloneBigInt(c.FixedNativePrice),
	}
}

func newTokenSaleConfig() *TokenSaleConfig {
	return &TokenSaleConfig{
		UsdPeggedPrice: big.NewInt(0),
		FixedPrice:     big.NewInt(0),
	}
}

func newNativeSaleConfig() *NativeSaleConfig {
	return &NativeSaleConfig{
		TokenSaleConfig:  *newTokenSaleConfig(),
		FixedNativePrice: big.NewInt(0),
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
