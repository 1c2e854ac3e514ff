package sale_test

import (
	"errors"
	"math/big"
	"testing"

	"storefront/core/events"
	"storefront/core/state"
	"storefront/native/sale"
	"storefront/storage"
)

const roleSaleAdmin = "ROLE_SALE_ADMIN"

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) {
	c.events = append(c.events, e)
}

type staticPauses struct {
	paused bool
}

func (p staticPauses) IsPaused(module string) bool {
	return p.paused && module == "sale"
}

func newTestRegistry(t *testing.T) (*sale.Registry, *state.Manager, [20]byte) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)
	if err := manager.RegisterToken("USDX", "USD Stable", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	var admin [20]byte
	admin[0] = 0x01
	if err := manager.SetRole(roleSaleAdmin, admin[:]); err != nil {
		t.Fatalf("assign admin role: %v", err)
	}
	return sale.NewRegistry(manager), manager, admin
}

func feedAddr(b byte) sale.FeedAddress {
	var feed sale.FeedAddress
	feed[19] = b
	return feed
}

func TestRegistryZeroConfigReads(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	cfg, err := registry.TokenConfig(9, "usdx")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.UsdPeggedPrice.Sign() != 0 || cfg.FixedPrice.Sign() != 0 {
		t.Fatalf("expected zero prices, got %+v", cfg)
	}
	if !cfg.PriceFeed.IsZero() || cfg.Auction != nil {
		t.Fatalf("expected unconfigured feed and auction")
	}

	native, err := registry.NativeConfig(9)
	if err != nil {
		t.Fatalf("native config: %v", err)
	}
	if native.FixedNativePrice.Sign() != 0 || native.UsdPeggedPrice.Sign() != 0 {
		t.Fatalf("expected zero native prices, got %+v", native)
	}
}

func TestRegistrySettersRequireRole(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	var outsider [20]byte
	outsider[0] = 0x99

	if err := registry.SetTokenPegPrice(outsider, 1, "USDX", big.NewInt(1), feedAddr(0xAA)); !errors.Is(err, sale.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := registry.SetTokenFixedPrice(outsider, 1, "USDX", big.NewInt(1)); !errors.Is(err, sale.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := registry.SetNativeMarkup(outsider, 1, 5); !errors.Is(err, sale.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	cfg, err := registry.TokenConfig(1, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.UsdPeggedPrice.Sign() != 0 || cfg.FixedPrice.Sign() != 0 {
		t.Fatalf("unauthorized call must not mutate state: %+v", cfg)
	}
}

func TestRegistrySetTokenPegPrice(t *testing.T) {
	registry, _, admin := newTestRegistry(t)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)

	price := new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	feed := feedAddr(0xAA)
	if err := registry.SetTokenPegPrice(admin, 1, "usdx", price, feed); err != nil {
		t.Fatalf("set peg price: %v", err)
	}

	cfg, err := registry.TokenConfig(1, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.UsdPeggedPrice.Cmp(price) != 0 {
		t.Fatalf("unexpected peg price: %s", cfg.UsdPeggedPrice)
	}
	if cfg.PriceFeed != feed {
		t.Fatalf("unexpected feed: %x", cfg.PriceFeed)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeSalePegUpdated {
		t.Fatalf("expected peg event, got %#v", emitter.events)
	}

	assets, err := registry.SaleAssets(1)
	if err != nil {
		t.Fatalf("sale assets: %v", err)
	}
	if len(assets) != 1 || assets[0] != "USDX" {
		t.Fatalf("unexpected asset index: %v", assets)
	}
}

func TestRegistrySetterIdempotence(t *testing.T) {
	registry, _, admin := newTestRegistry(t)

	price := big.NewInt(2500)
	if err := registry.SetTokenFixedPrice(admin, 4, "USDX", price); err != nil {
		t.Fatalf("set fixed price: %v", err)
	}
	first, err := registry.TokenConfig(4, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if err := registry.SetTokenFixedPrice(admin, 4, "USDX", price); err != nil {
		t.Fatalf("repeat set fixed price: %v", err)
	}
	second, err := registry.TokenConfig(4, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if first.FixedPrice.Cmp(second.FixedPrice) != 0 ||
		first.DiscountPercent != second.DiscountPercent ||
		first.MarkupPercent != second.MarkupPercent {
		t.Fatalf("repeated setter changed state: %+v vs %+v", first, second)
	}

	assets, err := registry.SaleAssets(4)
	if err != nil {
		t.Fatalf("sale assets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("asset index must deduplicate, got %v", assets)
	}
}

func TestRegistryFieldIndependence(t *testing.T) {
	registry, _, admin := newTestRegistry(t)

	// A discount can be configured before any price or feed exists.
	if err := registry.SetTokenDiscount(admin, 2, "USDX", 25); err != nil {
		t.Fatalf("set discount: %v", err)
	}
	if err := registry.SetTokenMarkup(admin, 2, "USDX", 300); err != nil {
		t.Fatalf("set markup: %v", err)
	}
	cfg, err := registry.TokenConfig(2, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.DiscountPercent != 25 || cfg.MarkupPercent != 300 {
		t.Fatalf("unexpected adjustments: %+v", cfg)
	}
	if cfg.UsdPeggedPrice.Sign() != 0 || !cfg.PriceFeed.IsZero() {
		t.Fatalf("peg fields must stay unset")
	}
}

func TestRegistryDiscountBounds(t *testing.T) {
	registry, _, admin := newTestRegistry(t)

	if err := registry.SetTokenDiscount(admin, 1, "USDX", 101); !errors.Is(err, sale.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	cfg, err := registry.TokenConfig(1, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.DiscountPercent != 0 {
		t.Fatalf("failed validation must not mutate state")
	}
	if err := registry.SetNativeDiscount(admin, 1, 101); !errors.Is(err, sale.ErrInvalidDiscount) {
		t.Fatalf("expected invalid native discount, got %v", err)
	}
	if err := registry.SetTokenDiscount(admin, 1, "USDX", 100); err != nil {
		t.Fatalf("discount of 100 must be accepted: %v", err)
	}
}

func TestRegistryAuctionValidation(t *testing.T) {
	registry, _, admin := newTestRegistry(t)

	err := registry.SetTokenAuction(admin, 1, "USDX", &sale.AuctionSchedule{
		StartTime:    100,
		EndTime:      100,
		StartPrice:   big.NewInt(1000),
		ReservePrice: big.NewInt(0),
	})
	if !errors.Is(err, sale.ErrInvalidAuctionWindow) {
		t.Fatalf("expected invalid window, got %v", err)
	}
	cfg, err := registry.TokenConfig(1, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.Auction != nil {
		t.Fatalf("rejected auction must not be stored")
	}

	err = registry.SetTokenAuction(admin, 1, "USDX", &sale.AuctionSchedule{
		StartTime:    0,
		EndTime:      100,
		StartPrice:   big.NewInt(10),
		ReservePrice: big.NewInt(20),
	})
	if !errors.Is(err, sale.ErrInvalidAuctionPrices) {
		t.Fatalf("expected invalid prices, got %v", err)
	}

	if err := registry.SetTokenAuction(admin, 1, "USDX", nil); !errors.Is(err, sale.ErrNilSchedule) {
		t.Fatalf("expected nil schedule error, got %v", err)
	}

	if err := registry.SetTokenAuction(admin, 1, "USDX", &sale.AuctionSchedule{
		StartTime:    0,
		EndTime:      100,
		StartPrice:   big.NewInt(1000),
		ReservePrice: big.NewInt(0),
	}); err != nil {
		t.Fatalf("valid auction rejected: %v", err)
	}
	cfg, err = registry.TokenConfig(1, "USDX")
	if err != nil {
		t.Fatalf("token config: %v", err)
	}
	if cfg.Auction == nil || cfg.Auction.StartPrice.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("auction not stored: %+v", cfg.Auction)
	}
}

func TestRegistryUnknownToken(t *testing.T) {
	registry, _, admin := newTestRegistry(t)

	if err := registry.SetTokenFixedPrice(admin, 1, "GHOST", big.NewInt(5)); !errors.Is(err, sale.ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	if err := registry.SetTokenFixedPrice(admin, 1, "  ", big.NewInt(5)); !errors.Is(err, sale.ErrInvalidAsset) {
		t.Fatalf("expected invalid asset, got %v", err)
	}
}

func TestRegistryNativeSetters(t *testing.T) {
	registry, _, admin := newTestRegistry(t)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)

	peg := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if err := registry.SetNativePegPrice(admin, 3, peg, feedAddr(0xBB)); err != nil {
		t.Fatalf("set native peg: %v", err)
	}
	if err := registry.SetNativeFixedPrice(admin, 3, big.NewInt(7777)); err != nil {
		t.Fatalf("set native fixed: %v", err)
	}
	if err := registry.SetNativeAuction(admin, 3, &sale.AuctionSchedule{
		StartTime:    10,
		EndTime:      20,
		StartPrice:   big.NewInt(500),
		ReservePrice: big.NewInt(100),
	}); err != nil {
		t.Fatalf("set native auction: %v", err)
	}

	cfg, err := registry.NativeConfig(3)
	if err != nil {
		t.Fatalf("native config: %v", err)
	}
	if cfg.UsdPeggedPrice.Cmp(peg) != 0 {
		t.Fatalf("unexpected native peg: %s", cfg.UsdPeggedPrice)
	}
	if cfg.FixedNativePrice.Cmp(big.NewInt(7777)) != 0 {
		t.Fatalf("unexpected native fixed price: %s", cfg.FixedNativePrice)
	}
	if cfg.FixedPrice.Sign() != 0 {
		t.Fatalf("embedded fixed price must stay unset for native records")
	}
	if cfg.Auction == nil || cfg.Auction.EndTime != 20 {
		t.Fatalf("native auction not stored: %+v", cfg.Auction)
	}

	for _, event := range emitter.events {
		switch e := event.(type) {
		case events.SalePegUpdated:
			if e.Asset != sale.NativeAsset {
				t.Fatalf("native event carries asset %q", e.Asset)
			}
		case events.SaleFixedPriceUpdated:
			if e.Asset != sale.NativeAsset {
				t.Fatalf("native event carries asset %q", e.Asset)
			}
		}
	}
}

func TestRegistryPauseGuard(t *testing.T) {
	registry, _, admin := newTestRegistry(t)
	registry.SetPauses(staticPauses{paused: true})

	if err := registry.SetTokenFixedPrice(admin, 1, "USDX", big.NewInt(5)); !errors.Is(err, sale.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
	if err := registry.SetNativeFixedPrice(admin, 1, big.NewInt(5)); !errors.Is(err, sale.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
	// Reads stay available while paused.
	if _, err := registry.TokenConfig(1, "USDX"); err != nil {
		t.Fatalf("paused read: %v", err)
	}

	registry.SetPauses(staticPauses{})
	if err := registry.SetTokenFixedPrice(admin, 1, "USDX", big.NewInt(5)); err != nil {
		t.Fatalf("unpaused set: %v", err)
	}
}
