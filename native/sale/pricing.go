package sale

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// EngineState exposes the token metadata the price calculator needs.
type EngineState interface {
	TokenDecimals(symbol string) (uint8, bool)
}

// Engine answers the purchase-price queries over the registry's stored
// configuration. It holds no state of its own: every quote validates the
// relevant preconditions, performs at most one synchronous feed read and
// returns a freshly allocated amount.
type Engine struct {
	registry *Registry
	st       EngineState
	feed     PriceFeed
	curve    AuctionCurve
	now      func() uint64
}

// EngineOption customises engine construction.
type EngineOption func(*Engine)

// WithCurve overrides the auction decay strategy used for auction quotes.
func WithCurve(curve AuctionCurve) EngineOption {
	return func(e *Engine) {
		if curve != nil {
			e.curve = curve
		}
	}
}

// WithClock overrides the time source used to evaluate auction windows.
func WithClock(now func() uint64) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs a price calculator over the provided registry, state
// and feed. The default auction strategy is linear decay on the wall clock.
func NewEngine(registry *Registry, st EngineState, feed PriceFeed, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		st:       st,
		feed:     feed,
		curve:    LinearCurve{},
		now:      func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// SetCurve replaces the auction decay strategy. Passing nil restores the
// linear default.
func (e *Engine) SetCurve(curve AuctionCurve) {
	if curve == nil {
		e.curve = LinearCurve{}
		return
	}
	e.curve = curve
}

// ConvertUSD converts a USD amount at PegDecimals precision into asset
// units: the oracle answer is normalized to PegDecimals, the USD amount is
// scaled up before the division to preserve precision, and the result is
// rescaled to the target decimals with floor semantics.
func ConvertUSD(usdAmount *big.Int, answer *big.Int, feedDecimals, targetDecimals uint8) (*big.Int, error) {
	if usdAmount == nil || usdAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: usd amount", ErrInvalidAmount)
	}
	if answer == nil || answer.Sign() <= 0 {
		return nil, ErrOracleAnswer
	}
	usdPerUnit, err := Rescale(answer, feedDecimals, PegDecimals)
	if err != nil {
		return nil, err
	}
	if usdPerUnit.Sign() == 0 {
		return nil, fmt.Errorf("%w: rate truncates to zero", ErrOracleAnswer)
	}
	units := new(big.Int).Mul(usdAmount, pow10(PegDecimals))
	if err := checkAmountWidth(units); err != nil {
		return nil, err
	}
	units.Quo(units, usdPerUnit)
	return Rescale(units, PegDecimals, targetDecimals)
}

// ApplyAdjustment composes discount and markup onto a computed price:
// price * (100 - discount + markup) / 100 with floor division. The markup
// carries no upper bound, so the product is overflow-checked rather than
// capped.
func ApplyAdjustment(price *big.Int, discount uint32, markup uint16) (*big.Int, error) {
	if price == nil || price.Sign() < 0 {
		return nil, fmt.Errorf("%w: price", ErrInvalidAmount)
	}
	if discount > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDiscount, discount)
	}
	multiplier := big.NewInt(100 - int64(discount) + int64(markup))
	out := new(big.Int).Mul(price, multiplier)
	if err := checkAmountWidth(out); err != nil {
		return nil, err
	}
	return out.Quo(out, bigHundred), nil
}

func (e *Engine) tokenDecimals(symbol string) (uint8, error) {
	decimals, ok := e.st.TokenDecimals(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return decimals, nil
}

func (e *Engine) latestRound(ctx context.Context, feed FeedAddress) (RoundData, error) {
	if feed.IsZero() {
		return RoundData{}, ErrPegNotConfigured
	}
	if e.feed == nil {
		return RoundData{}, ErrFeedUnavailable
	}
	round, err := e.feed.Latest(ctx, feed)
	if err != nil {
		if errors.Is(err, ErrFeedUnavailable) {
			return RoundData{}, err
		}
		return RoundData{}, fmt.Errorf("%w: latest round: %w", ErrFeedUnavailable, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return RoundData{}, ErrOracleAnswer
	}
	return round, nil
}

// checkAuctionWindow validates that the schedule is usable and that now
// falls inside it, both ends inclusive.
func checkAuctionWindow(schedule *AuctionSchedule, now uint64) error {
	if schedule == nil || schedule.StartPrice == nil || schedule.StartPrice.Sign() <= 0 {
		return ErrAuctionNotConfigured
	}
	if now < schedule.StartTime {
		return ErrAuctionNotStarted
	}
	if now > schedule.EndTime {
		return ErrAuctionEnded
	}
	return nil
}

// QuoteTokenPegged prices one item from the token sale's USD peg, applying
// discount and markup.
func (e *Engine) QuoteTokenPegged(ctx context.Context, saleID SaleID, symbol string) (*big.Int, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	decimals, err := e.tokenDecimals(normalized)
	if err != nil {
		return nil, err
	}
	cfg, err := e.registry.TokenConfig(saleID, normalized)
	if err != nil {
		return nil, err
	}
	if cfg.UsdPeggedPrice == nil || cfg.UsdPeggedPrice.Sign() <= 0 || cfg.PriceFeed.IsZero() {
		return nil, ErrPegNotConfigured
	}
	round, err := e.latestRound(ctx, cfg.PriceFeed)
	if err != nil {
		return nil, err
	}
	base, err := ConvertUSD(cfg.UsdPeggedPrice, round.Answer, round.Decimals, decimals)
	if err != nil {
		return nil, err
	}
	return ApplyAdjustment(base, cfg.DiscountPercent, cfg.MarkupPercent)
}

// QuoteTokenFixed prices one item from the token sale's fixed price,
// applying discount and markup.
func (e *Engine) QuoteTokenFixed(ctx context.Context, saleID SaleID, symbol string) (*big.Int, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if _, err := e.tokenDecimals(normalized); err != nil {
		return nil, err
	}
	cfg, err := e.registry.TokenConfig(saleID, normalized)
	if err != nil {
		return nil, err
	}
	if cfg.FixedPrice == nil || cfg.FixedPrice.Sign() <= 0 {
		return nil, ErrFixedPriceNotConfigured
	}
	return ApplyAdjustment(cfg.FixedPrice, cfg.DiscountPercent, cfg.MarkupPercent)
}

// QuoteTokenAuction prices one item from the token sale's Dutch auction
// with the schedule read as USD at PegDecimals, converted through the
// configured feed. Auction prices carry no discount or markup.
func (e *Engine) QuoteTokenAuction(ctx context.Context, saleID SaleID, symbol string) (*big.Int, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	decimals, err := e.tokenDecimals(normalized)
	if err != nil {
		return nil, err
	}
	cfg, err := e.registry.TokenConfig(saleID, normalized)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := checkAuctionWindow(cfg.Auction, now); err != nil {
		return nil, err
	}
	if cfg.PriceFeed.IsZero() {
		return nil, ErrPegNotConfigured
	}
	round, err := e.latestRound(ctx, cfg.PriceFeed)
	if err != nil {
		return nil, err
	}
	usdPrice := e.curve.PriceAt(*cfg.Auction, now)
	return ConvertUSD(usdPrice, round.Answer, round.Decimals, decimals)
}

// QuoteTokenFixedAuction prices one item from the token sale's Dutch
// auction with the schedule read directly in the token's own units. Auction
// prices carry no discount or markup.
func (e *Engine) QuoteTokenFixedAuction(ctx context.Context, saleID SaleID, symbol string) (*big.Int, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if _, err := e.tokenDecimals(normalized); err != nil {
		return nil, err
	}
	cfg, err := e.registry.TokenConfig(saleID, normalized)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := checkAuctionWindow(cfg.Auction, now); err != nil {
		return nil, err
	}
	return e.curve.PriceAt(*cfg.Auction, now), nil
}

// QuoteNativePegged prices one item from the native record's USD peg,
// applying discount and markup.
func (e *Engine) QuoteNativePegged(ctx context.Context, saleID SaleID) (*big.Int, error) {
	cfg, err := e.registry.NativeConfig(saleID)
	if err != nil {
		return nil, err
	}
	if cfg.UsdPeggedPrice == nil || cfg.UsdPeggedPrice.Sign() <= 0 || cfg.PriceFeed.IsZero() {
		return nil, ErrPegNotConfigured
	}
	round, err := e.latestRound(ctx, cfg.PriceFeed)
	if err != nil {
		return nil, err
	}
	base, err := ConvertUSD(cfg.UsdPeggedPrice, round.Answer, round.Decimals, NativeDecimals)
	if err != nil {
		return nil, err
	}
	return ApplyAdjustment(base, cfg.DiscountPercent, cfg.MarkupPercent)
}

// QuoteNativeFixed prices one item from the native record's fixed price in
// native units, applying discount and markup.
func (e *Engine) QuoteNativeFixed(ctx context.Context, saleID SaleID) (*big.Int, error) {
	cfg, err := e.registry.NativeConfig(saleID)
	if err != nil {
		return nil, err
	}
	if cfg.FixedNativePrice == nil || cfg.FixedNativePrice.Sign() <= 0 {
		return nil, ErrFixedPriceNotConfigured
	}
	return ApplyAdjustment(cfg.FixedNativePrice, cfg.DiscountPercent, cfg.MarkupPercent)
}

// QuoteNativeAuction prices one item from the native record's Dutch auction
// with the schedule read as USD at PegDecimals, converted through the
// configured feed. Auction prices carry no discount or markup.
func (e *Engine) QuoteNativeAuction(ctx context.Context, saleID SaleID) (*big.Int, error) {
	cfg, err := e.registry.NativeConfig(saleID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := checkAuctionWindow(cfg.Auction, now); err != nil {
		return nil, err
	}
	if cfg.PriceFeed.IsZero() {
		return nil, ErrPegNotConfigured
	}
	round, err := e.latestRound(ctx, cfg.PriceFeed)
	if err != nil {
		return nil, err
	}
	usdPrice := e.curve.PriceAt(*cfg.Auction, now)
	return ConvertUSD(usdPrice, round.Answer, round.Decimals, NativeDecimals)
}

// QuoteNativeFixedAuction prices one item from the native record's Dutch
// auction with the schedule read directly in native units. Auction prices
// carry no discount or markup.
func (e *Engine) QuoteNativeFixedAuction(ctx context.Context, saleID SaleID) (*big.Int, error) {
	cfg, err := e.registry.NativeConfig(saleID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := checkAuctionWindow(cfg.Auction, now); err != nil {
		return nil, err
	}
	return e.curve.PriceAt(*cfg.Auction, now), nil
}

// TokenFeedPrice returns the latest round data of the feed configured for
// the token sale without any conversion.
func (e *Engine) TokenFeedPrice(ctx context.Context, saleID SaleID, symbol string) (RoundData, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return RoundData{}, err
	}
	cfg, err := e.registry.TokenConfig(saleID, normalized)
	if err != nil {
		return RoundData{}, err
	}
	return e.latestRound(ctx, cfg.PriceFeed)
}

// NativeFeedPrice returns the latest round data of the feed configured for
// the native record without any conversion.
func (e *Engine) NativeFeedPrice(ctx context.Context, saleID SaleID) (RoundData, error) {
	cfg, err := e.registry.NativeConfig(saleID)
	if err != nil {
		return RoundData{}, err
	}
	return e.latestRound(ctx, cfg.PriceFeed)
}
