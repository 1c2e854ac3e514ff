package sale

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"storefront/core/events"
)

const (
	roleSaleAdmin = "ROLE_SALE_ADMIN"
	moduleName    = "sale"
)

type registryState interface {
	TokenExists(symbol string) bool
	HasRole(role string, addr []byte) bool
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// PauseView reports whether a module is administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Registry manages persistence and retrieval of sale configurations. Every
// mutation requires the caller to hold ROLE_SALE_ADMIN; reads never fail on
// absence and return the zero configuration instead.
type Registry struct {
	st      registryState
	emitter events.Emitter
	pauses  PauseView
}

// NewRegistry creates a registry backed by the provided state manager.
func NewRegistry(st registryState) *Registry {
	return &Registry{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used to broadcast configuration
// updates. Passing nil resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetPauses wires the pause view consulted before every mutation.
func (r *Registry) SetPauses(p PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

func (r *Registry) guard() error {
	if r.pauses != nil && r.pauses.IsPaused(moduleName) {
		return ErrModulePaused
	}
	return nil
}

func (r *Registry) emit(event events.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(event)
}

func normalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("%w: token symbol required", ErrInvalidAsset)
	}
	return normalized, nil
}

// storedTokenConfig is the flat persisted form of a token sale config. Big
// integers are kept non-nil and the optional auction is flattened behind
// AuctionSet so the record stays RLP-friendly.
type storedTokenConfig struct {
	UsdPeggedPrice      *big.Int
	DiscountPercent     uint32
	MarkupPercent       uint16
	PriceFeed           [20]byte
	FixedPrice          *big.Int
	AuctionSet          bool
	AuctionStart        uint64
	AuctionEnd          uint64
	AuctionStartPrice   *big.Int
	AuctionReservePrice *big.Int
}

type storedNativeConfig struct {
	UsdPeggedPrice      *big.Int
	DiscountPercent     uint32
	MarkupPercent       uint16
	PriceFeed           [20]byte
	FixedPrice          *big.Int
	FixedNativePrice    *big.Int
	AuctionSet          bool
	AuctionStart        uint64
	AuctionEnd          uint64
	AuctionStartPrice   *big.Int
	AuctionReservePrice *big.Int
}

func storedFromTokenConfig(c *TokenSaleConfig) *storedTokenConfig {
	stored := &storedTokenConfig{
		UsdPeggedPrice:      cloneBigInt(c.UsdPeggedPrice),
		DiscountPercent:     c.DiscountPercent,
		MarkupPercent:       c.MarkupPercent,
		PriceFeed:           c.PriceFeed,
		FixedPrice:          cloneBigInt(c.FixedPrice),
		AuctionStartPrice:   big.NewInt(0),
		AuctionReservePrice: big.NewInt(0),
	}
	if c.Auction != nil {
		stored.AuctionSet = true
		stored.AuctionStart = c.Auction.StartTime
		stored.AuctionEnd = c.Auction.EndTime
		stored.AuctionStartPrice = cloneBigInt(c.Auction.StartPrice)
		stored.AuctionReservePrice = cloneBigInt(c.Auction.ReservePrice)
	}
	return stored
}

func (s *storedTokenConfig) config() *TokenSaleConfig {
	cfg := &TokenSaleConfig{
		UsdPeggedPrice:  cloneBigInt(s.UsdPeggedPrice),
		DiscountPercent: s.DiscountPercent,
		MarkupPercent:   s.MarkupPercent,
		PriceFeed:       s.PriceFeed,
		FixedPrice:      cloneBigInt(s.FixedPrice),
	}
	if s.AuctionSet {
		cfg.Auction = &AuctionSchedule{
			StartTime:    s.AuctionStart,
			EndTime:      s.AuctionEnd,
			StartPrice:   cloneBigInt(s.AuctionStartPrice),
			ReservePrice: cloneBigInt(s.AuctionReservePrice),
		}
	}
	return cfg
}

func storedFromNativeConfig(c *NativeSaleConfig) *storedNativeConfig {
	token := storedFromTokenConfig(&c.TokenSaleConfig)
	return &storedNativeConfig{
		UsdPeggedPrice:      token.UsdPeggedPrice,
		DiscountPercent:     token.DiscountPercent,
		MarkupPercent:       token.MarkupPercent,
		PriceFeed:           token.PriceFeed,
		FixedPrice:          token.FixedPrice,
		FixedNativePrice:    cloneBigInt(c.FixedNativePrice),
		AuctionSet:          token.AuctionSet,
		AuctionStart:        token.AuctionStart,
		AuctionEnd:          token.AuctionEnd,
		AuctionStartPrice:   token.AuctionStartPrice,
		AuctionReservePrice: token.AuctionReservePrice,
	}
}

func (s *storedNativeConfig) config() *NativeSaleConfig {
	token := storedTokenConfig{
		UsdPeggedPrice:      s.UsdPeggedPrice,
		DiscountPercent:     s.DiscountPercent,
		MarkupPercent:       s.MarkupPercent,
		PriceFeed:           s.PriceFeed,
		FixedPrice:          s.FixedPrice,
		AuctionSet:          s.AuctionSet,
		AuctionStart:        s.AuctionStart,
		AuctionEnd:          s.AuctionEnd,
		AuctionStartPrice:   s.AuctionStartPrice,
		AuctionReservePrice: s.AuctionReservePrice,
	}
	return &NativeSaleConfig{
		TokenSaleConfig:  *token.config(),
		FixedNativePrice: cloneBigInt(s.FixedNativePrice),
	}
}

func (r *Registry) loadTokenConfig(saleID SaleID, symbol string) (*TokenSaleConfig, error) {
	stored := new(storedTokenConfig)
	ok, err := r.st.KVGet(tokenConfigKey(saleID, symbol), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newTokenSaleConfig(), nil
	}
	return stored.config(), nil
}

func (r *Registry) loadNativeConfig(saleID SaleID) (*NativeSaleConfig, error) {
	stored := new(storedNativeConfig)
	ok, err := r.st.KVGet(nativeConfigKey(saleID), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newNativeSaleConfig(), nil
	}
	return stored.config(), nil
}

// TokenConfig retrieves the configuration stored for the sale and token
// symbol. Records that were never written read as the zero configuration.
func (r *Registry) TokenConfig(saleID SaleID, symbol string) (*TokenSaleConfig, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return r.loadTokenConfig(saleID, normalized)
}

// NativeConfig retrieves the native-unit configuration stored for the sale.
// Records that were never written read as the zero configuration.
func (r *Registry) NativeConfig(saleID SaleID) (*NativeSaleConfig, error) {
	return r.loadNativeConfig(saleID)
}

// SaleAssets returns the token symbols with configuration under the sale in
// deterministic order.
func (r *Registry) SaleAssets(saleID SaleID) ([]string, error) {
	var raw [][]byte
	if err := r.st.KVGetList(assetIndexKey(saleID), &raw); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(raw))
	for _, b := range raw {
		symbols = append(symbols, string(b))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// updateTokenConfig runs the shared mutation path for token setters: pause
// guard, symbol normalization, role gate, token existence, load-or-default,
// field application, persist, index. Validation always precedes the write so
// failed mutations leave state untouched.
func (r *Registry) updateTokenConfig(caller [20]byte, saleID SaleID, symbol string, apply func(*TokenSaleConfig) error) (*TokenSaleConfig, string, error) {
	if err := r.guard(); err != nil {
		return nil, "", err
	}
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, "", err
	}
	if !r.st.HasRole(roleSaleAdmin, caller[:]) {
		return nil, "", ErrUnauthorized
	}
	if !r.st.TokenExists(normalized) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownToken, normalized)
	}
	cfg, err := r.loadTokenConfig(saleID, normalized)
	if err != nil {
		return nil, "", err
	}
	if err := apply(cfg); err != nil {
		return nil, "", err
	}
	if err := r.st.KVPut(tokenConfigKey(saleID, normalized), storedFromTokenConfig(cfg)); err != nil {
		return nil, "", err
	}
	if err := r.st.KVAppend(assetIndexKey(saleID), []byte(normalized)); err != nil {
		return nil, "", err
	}
	return cfg, normalized, nil
}

func (r *Registry) updateNativeConfig(caller [20]byte, saleID SaleID, apply func(*NativeSaleConfig) error) (*NativeSaleConfig, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	if !r.st.HasRole(roleSaleAdmin, caller[:]) {
		return nil, ErrUnauthorized
	}
	cfg, err := r.loadNativeConfig(saleID)
	if err != nil {
		return nil, err
	}
	if err := apply(cfg); err != nil {
		return nil, err
	}
	if err := r.st.KVPut(nativeConfigKey(saleID), storedFromNativeConfig(cfg)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkStoredPrice(price *big.Int) error {
	if price != nil && price.Sign() < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidAmount)
	}
	return nil
}

// SetTokenPegPrice configures the USD peg for a token sale: the price at
// PegDecimals precision and the feed used to convert it at query time.
// A zero price with the zero feed clears the peg.
func (r *Registry) SetTokenPegPrice(caller [20]byte, saleID SaleID, symbol string, usdPrice *big.Int, feed FeedAddress) error {
	cfg, asset, err := r.updateTokenConfig(caller, saleID, symbol, func(c *TokenSaleConfig) error {
		if err := checkStoredPrice(usdPrice); err != nil {
			return err
		}
		c.UsdPeggedPrice = cloneBigInt(usdPrice)
		c.PriceFeed = feed
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SalePegUpdated{
		SaleID:   uint64(saleID),
		Asset:    asset,
		UsdPrice: cloneBigInt(cfg.UsdPeggedPrice),
		Feed:     feed,
	})
	return nil
}

// SetTokenFixedPrice configures the price of one item in the token's own
// units. A zero price clears fixed pricing.
func (r *Registry) SetTokenFixedPrice(caller [20]byte, saleID SaleID, symbol string, price *big.Int) error {
	cfg, asset, err := r.updateTokenConfig(caller, saleID, symbol, func(c *TokenSaleConfig) error {
		if err := checkStoredPrice(price); err != nil {
			return err
		}
		c.FixedPrice = cloneBigInt(price)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleFixedPriceUpdated{
		SaleID: uint64(saleID),
		Asset:  asset,
		Price:  cloneBigInt(cfg.FixedPrice),
	})
	return nil
}

// SetTokenDiscount configures the discount percentage applied to peg and
// fixed quotes.
func (r *Registry) SetTokenDiscount(caller [20]byte, saleID SaleID, symbol string, percent uint32) error {
	cfg, asset, err := r.updateTokenConfig(caller, saleID, symbol, func(c *TokenSaleConfig) error {
		if percent > 100 {
			return fmt.Errorf("%w: %d", ErrInvalidDiscount, percent)
		}
		c.DiscountPercent = percent
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleDiscountUpdated{
		SaleID:  uint64(saleID),
		Asset:   asset,
		Percent: cfg.DiscountPercent,
	})
	return nil
}

// SetTokenMarkup configures the markup percentage applied to peg and fixed
// quotes. The only bound is the field's 16-bit width; composition detects
// overflow at query time.
func (r *Registry) SetTokenMarkup(caller [20]byte, saleID SaleID, symbol string, percent uint16) error {
	cfg, asset, err := r.updateTokenConfig(caller, saleID, symbol, func(c *TokenSaleConfig) error {
		c.MarkupPercent = percent
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleMarkupUpdated{
		SaleID:  uint64(saleID),
		Asset:   asset,
		Percent: cfg.MarkupPercent,
	})
	return nil
}

// SetTokenAuction configures the Dutch auction window for a token sale.
func (r *Registry) SetTokenAuction(caller [20]byte, saleID SaleID, symbol string, schedule *AuctionSchedule) error {
	cfg, asset, err := r.updateTokenConfig(caller, saleID, symbol, func(c *TokenSaleConfig) error {
		sanitized, err := sanitizeSchedule(schedule)
		if err != nil {
			return err
		}
		c.Auction = sanitized
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleAuctionScheduled{
		SaleID:       uint64(saleID),
		Asset:        asset,
		StartTime:    cfg.Auction.StartTime,
		EndTime:      cfg.Auction.EndTime,
		StartPrice:   cloneBigInt(cfg.Auction.StartPrice),
		ReservePrice: cloneBigInt(cfg.Auction.ReservePrice),
	})
	return nil
}

// SetNativePegPrice configures the USD peg for the sale's native record.
func (r *Registry) SetNativePegPrice(caller [20]byte, saleID SaleID, usdPrice *big.Int, feed FeedAddress) error {
	cfg, err := r.updateNativeConfig(caller, saleID, func(c *NativeSaleConfig) error {
		if err := checkStoredPrice(usdPrice); err != nil {
			return err
		}
		c.UsdPeggedPrice = cloneBigInt(usdPrice)
		c.PriceFeed = feed
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SalePegUpdated{
		SaleID:   uint64(saleID),
		Asset:    NativeAsset,
		UsdPrice: cloneBigInt(cfg.UsdPeggedPrice),
		Feed:     feed,
	})
	return nil
}

// SetNativeFixedPrice configures the price of one item in native units.
func (r *Registry) SetNativeFixedPrice(caller [20]byte, saleID SaleID, price *big.Int) error {
	cfg, err := r.updateNativeConfig(caller, saleID, func(c *NativeSaleConfig) error {
		if err := checkStoredPrice(price); err != nil {
			return err
		}
		c.FixedNativePrice = cloneBigInt(price)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleFixedPriceUpdated{
		SaleID: uint64(saleID),
		Asset:  NativeAsset,
		Price:  cloneBigInt(cfg.FixedNativePrice),
	})
	return nil
}

// SetNativeDiscount configures the discount percentage for the native
// record.
func (r *Registry) SetNativeDiscount(caller [20]byte, saleID SaleID, percent uint32) error {
	cfg, err := r.updateNativeConfig(caller, saleID, func(c *NativeSaleConfig) error {
		if percent > 100 {
			return fmt.Errorf("%w: %d", ErrInvalidDiscount, percent)
		}
		c.DiscountPercent = percent
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleDiscountUpdated{
		SaleID:  uint64(saleID),
		Asset:   NativeAsset,
		Percent: cfg.DiscountPercent,
	})
	return nil
}

// SetNativeMarkup configures the markup percentage for the native record.
func (r *Registry) SetNativeMarkup(caller [20]byte, saleID SaleID, percent uint16) error {
	cfg, err := r.updateNativeConfig(caller, saleID, func(c *NativeSaleConfig) error {
		c.MarkupPercent = percent
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleMarkupUpdated{
		SaleID:  uint64(saleID),
		Asset:   NativeAsset,
		Percent: cfg.MarkupPercent,
	})
	return nil
}

// SetNativeAuction configures the Dutch auction window for the native
// record.
func (r *Registry) SetNativeAuction(caller [20]byte, saleID SaleID, schedule *AuctionSchedule) error {
	cfg, err := r.updateNativeConfig(caller, saleID, func(c *NativeSaleConfig) error {
		sanitized, err := sanitizeSchedule(schedule)
		if err != nil {
			return err
		}
		c.Auction = sanitized
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(events.SaleAuctionScheduled{
		SaleID:       uint64(saleID),
		Asset:        NativeAsset,
		StartTime:    cfg.Auction.StartTime,
		EndTime:      cfg.Auction.EndTime,
		StartPrice:   cloneBigInt(cfg.Auction.StartPrice),
		ReservePrice: cloneBigInt(cfg.Auction.ReservePrice),
	})
	return nil
}
