package sale_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"storefront/core/state"
	"storefront/native/sale"
	"storefront/storage"
)

func usd18(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type testClock struct {
	now uint64
}

func (c *testClock) Now() uint64 { return c.now }

func newTestEngine(t *testing.T) (*sale.Engine, *sale.Registry, *sale.ManualFeed, *testClock, [20]byte) {
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
	registry := sale.NewRegistry(manager)
	feed := sale.NewManualFeed()
	clock := &testClock{now: 1_000}
	engine := sale.NewEngine(registry, manager, feed, sale.WithClock(clock.Now))
	return engine, registry, feed, clock, admin
}

func TestConvertUSD(t *testing.T) {
	// 10 USD at a 1.00000000 USD/token rate quoted by an 8-decimal feed,
	// settled in a 6-decimal token.
	got, err := sale.ConvertUSD(usd18(10), big.NewInt(100000000), 8, 6)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Cmp(big.NewInt(10_000000)) != 0 {
		t.Fatalf("got %s want 10000000", got)
	}
}

func TestConvertUSDMultipliesBeforeDividing(t *testing.T) {
	// 1 USD at 3.00 USD/token: naive division in USD space would floor the
	// intermediate to zero tokens before rescaling.
	got, err := sale.ConvertUSD(usd18(1), big.NewInt(300000000), 8, 6)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Cmp(big.NewInt(333333)) != 0 {
		t.Fatalf("got %s want 333333", got)
	}
}

func TestConvertUSDRejectsBadAnswers(t *testing.T) {
	if _, err := sale.ConvertUSD(usd18(1), big.NewInt(0), 8, 6); !errors.Is(err, sale.ErrOracleAnswer) {
		t.Fatalf("zero answer: got %v", err)
	}
	if _, err := sale.ConvertUSD(usd18(1), big.NewInt(-5), 8, 6); !errors.Is(err, sale.ErrOracleAnswer) {
		t.Fatalf("negative answer: got %v", err)
	}
	if _, err := sale.ConvertUSD(nil, big.NewInt(1), 8, 6); !errors.Is(err, sale.ErrInvalidAmount) {
		t.Fatalf("nil usd amount: got %v", err)
	}
}

func TestConvertUSDOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 250)
	if _, err := sale.ConvertUSD(huge, big.NewInt(100000000), 8, 6); !errors.Is(err, sale.ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestApplyAdjustment(t *testing.T) {
	price := big.NewInt(1_000_000)

	got, err := sale.ApplyAdjustment(price, 0, 0)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if got.Cmp(price) != 0 {
		t.Fatalf("identity: got %s want %s", got, price)
	}

	got, err = sale.ApplyAdjustment(price, 100, 0)
	if err != nil {
		t.Fatalf("full discount: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("full discount: got %s want 0", got)
	}

	got, err = sale.ApplyAdjustment(price, 0, 250)
	if err != nil {
		t.Fatalf("markup: %v", err)
	}
	if got.Cmp(big.NewInt(3_500_000)) != 0 {
		t.Fatalf("markup 250%%: got %s want 3500000", got)
	}

	got, err = sale.ApplyAdjustment(price, 25, 10)
	if err != nil {
		t.Fatalf("combined: %v", err)
	}
	if got.Cmp(big.NewInt(850_000)) != 0 {
		t.Fatalf("combined: got %s want 850000", got)
	}

	if _, err := sale.ApplyAdjustment(price, 101, 0); !errors.Is(err, sale.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	if _, err := sale.ApplyAdjustment(nil, 0, 0); !errors.Is(err, sale.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := sale.ApplyAdjustment(huge, 0, 65535); !errors.Is(err, sale.ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestQuoteTokenPegged(t *testing.T) {
	engine, registry, feed, _, admin := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.QuoteTokenPegged(ctx, 1, "USDX"); !errors.Is(err, sale.ErrPegNotConfigured) {
		t.Fatalf("unconfigured peg: got %v", err)
	}

	addr := feedAddr(0xAA)
	feed.Set(addr, big.NewInt(100000000), 8, "USDX / USD")
	if err := registry.SetTokenPegPrice(admin, 1, "USDX", usd18(10), addr); err != nil {
		t.Fatalf("set peg: %v", err)
	}
	got, err := engine.QuoteTokenPegged(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if got.Cmp(big.NewInt(10_000000)) != 0 {
		t.Fatalf("got %s want 10000000", got)
	}

	if err := registry.SetTokenDiscount(admin, 1, "USDX", 25); err != nil {
		t.Fatalf("set discount: %v", err)
	}
	got, err = engine.QuoteTokenPegged(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote with discount: %v", err)
	}
	if got.Cmp(big.NewInt(7_500000)) != 0 {
		t.Fatalf("got %s want 7500000", got)
	}

	if _, err := engine.QuoteTokenPegged(ctx, 1, "GHOST"); !errors.Is(err, sale.ErrUnknownToken) {
		t.Fatalf("unknown token: got %v", err)
	}
}

func TestQuoteTokenPeggedFeedErrors(t *testing.T) {
	engine, registry, feed, _, admin := newTestEngine(t)
	ctx := context.Background()

	addr := feedAddr(0xAB)
	if err := registry.SetTokenPegPrice(admin, 1, "USDX", usd18(1), addr); err != nil {
		t.Fatalf("set peg: %v", err)
	}
	if _, err := engine.QuoteTokenPegged(ctx, 1, "USDX"); !errors.Is(err, sale.ErrFeedUnavailable) {
		t.Fatalf("missing round: got %v", err)
	}

	feed.Set(addr, big.NewInt(0), 8, "USDX / USD")
	if _, err := engine.QuoteTokenPegged(ctx, 1, "USDX"); !errors.Is(err, sale.ErrOracleAnswer) {
		t.Fatalf("stale round: got %v", err)
	}
}

func TestQuoteTokenFixed(t *testing.T) {
	engine, registry, _, _, admin := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.QuoteTokenFixed(ctx, 1, "USDX"); !errors.Is(err, sale.ErrFixedPriceNotConfigured) {
		t.Fatalf("unconfigured fixed price: got %v", err)
	}

	if err := registry.SetTokenFixedPrice(admin, 1, "USDX", big.NewInt(2_000000)); err != nil {
		t.Fatalf("set fixed price: %v", err)
	}
	if err := registry.SetTokenMarkup(admin, 1, "USDX", 50); err != nil {
		t.Fatalf("set markup: %v", err)
	}
	got, err := engine.QuoteTokenFixed(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if got.Cmp(big.NewInt(3_000000)) != 0 {
		t.Fatalf("got %s want 3000000", got)
	}
}

func TestQuoteTokenAuction(t *testing.T) {
	engine, registry, feed, clock, admin := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.QuoteTokenAuction(ctx, 1, "USDX"); !errors.Is(err, sale.ErrAuctionNotConfigured) {
		t.Fatalf("unconfigured auction: got %v", err)
	}

	schedule := &sale.AuctionSchedule{
		StartTime:    1_000,
		EndTime:      1_100,
		StartPrice:   usd18(1000),
		ReservePrice: big.NewInt(0),
	}
	if err := registry.SetTokenAuction(admin, 1, "USDX", schedule); err != nil {
		t.Fatalf("set auction: %v", err)
	}

	clock.now = 900
	if _, err := engine.QuoteTokenAuction(ctx, 1, "USDX"); !errors.Is(err, sale.ErrAuctionNotStarted) {
		t.Fatalf("before window: got %v", err)
	}
	clock.now = 1_200
	if _, err := engine.QuoteTokenAuction(ctx, 1, "USDX"); !errors.Is(err, sale.ErrAuctionEnded) {
		t.Fatalf("after window: got %v", err)
	}

	clock.now = 1_050
	if _, err := engine.QuoteTokenAuction(ctx, 1, "USDX"); !errors.Is(err, sale.ErrPegNotConfigured) {
		t.Fatalf("no feed: got %v", err)
	}

	addr := feedAddr(0xAC)
	feed.Set(addr, big.NewInt(200000000), 8, "USDX / USD")
	if err := registry.SetTokenPegPrice(admin, 1, "USDX", usd18(1), addr); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	// Halfway down the line the USD price is 500, worth 250 tokens at
	// 2.00 USD each.
	got, err := engine.QuoteTokenAuction(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if got.Cmp(big.NewInt(250_000000)) != 0 {
		t.Fatalf("got %s want 250000000", got)
	}

	// Discounts and markups never touch auction quotes.
	if err := registry.SetTokenDiscount(admin, 1, "USDX", 50); err != nil {
		t.Fatalf("set discount: %v", err)
	}
	got, err = engine.QuoteTokenAuction(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote with discount set: %v", err)
	}
	if got.Cmp(big.NewInt(250_000000)) != 0 {
		t.Fatalf("auction quote moved with discount: %s", got)
	}
}

func TestQuoteTokenFixedAuction(t *testing.T) {
	engine, registry, _, clock, admin := newTestEngine(t)
	ctx := context.Background()

	if err := registry.SetTokenAuction(admin, 1, "USDX", &sale.AuctionSchedule{
		StartTime:    1_000,
		EndTime:      1_100,
		StartPrice:   big.NewInt(9_000000),
		ReservePrice: big.NewInt(1_000000),
	}); err != nil {
		t.Fatalf("set auction: %v", err)
	}

	clock.now = 1_000
	got, err := engine.QuoteTokenFixedAuction(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote at start: %v", err)
	}
	if got.Cmp(big.NewInt(9_000000)) != 0 {
		t.Fatalf("got %s want 9000000", got)
	}

	clock.now = 1_100
	got, err = engine.QuoteTokenFixedAuction(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quote at end: %v", err)
	}
	if got.Cmp(big.NewInt(1_000000)) != 0 {
		t.Fatalf("got %s want 1000000", got)
	}
}

func TestQuoteTokenAuctionCurveSwap(t *testing.T) {
	engine, registry, _, clock, admin := newTestEngine(t)
	ctx := context.Background()

	if err := registry.SetTokenAuction(admin, 1, "USDX", &sale.AuctionSchedule{
		StartTime:    1_000,
		EndTime:      1_100,
		StartPrice:   big.NewInt(1000),
		ReservePrice: big.NewInt(0),
	}); err != nil {
		t.Fatalf("set auction: %v", err)
	}
	clock.now = 1_050

	linear, err := engine.QuoteTokenFixedAuction(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("linear quote: %v", err)
	}
	engine.SetCurve(sale.QuadraticCurve{})
	quadratic, err := engine.QuoteTokenFixedAuction(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("quadratic quote: %v", err)
	}
	if linear.Cmp(big.NewInt(500)) != 0 || quadratic.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("got linear %s quadratic %s", linear, quadratic)
	}
}

func TestQuoteNative(t *testing.T) {
	engine, registry, feed, clock, admin := newTestEngine(t)
	ctx := context.Background()

	addr := feedAddr(0xAD)
	feed.Set(addr, big.NewInt(50000000), 8, "NHB / USD")
	if err := registry.SetNativePegPrice(admin, 2, usd18(1), addr); err != nil {
		t.Fatalf("set native peg: %v", err)
	}
	// 1 USD at 0.50 USD per native unit buys 2 native units.
	got, err := engine.QuoteNativePegged(ctx, 2)
	if err != nil {
		t.Fatalf("native peg quote: %v", err)
	}
	if got.Cmp(usd18(2)) != 0 {
		t.Fatalf("got %s want %s", got, usd18(2))
	}

	if _, err := engine.QuoteNativeFixed(ctx, 2); !errors.Is(err, sale.ErrFixedPriceNotConfigured) {
		t.Fatalf("unset native fixed: got %v", err)
	}
	if err := registry.SetNativeFixedPrice(admin, 2, usd18(5)); err != nil {
		t.Fatalf("set native fixed: %v", err)
	}
	got, err = engine.QuoteNativeFixed(ctx, 2)
	if err != nil {
		t.Fatalf("native fixed quote: %v", err)
	}
	if got.Cmp(usd18(5)) != 0 {
		t.Fatalf("got %s want %s", got, usd18(5))
	}

	if err := registry.SetNativeAuction(admin, 2, &sale.AuctionSchedule{
		StartTime:    1_000,
		EndTime:      1_100,
		StartPrice:   usd18(4),
		ReservePrice: usd18(2),
	}); err != nil {
		t.Fatalf("set native auction: %v", err)
	}
	clock.now = 1_050
	got, err = engine.QuoteNativeAuction(ctx, 2)
	if err != nil {
		t.Fatalf("native auction quote: %v", err)
	}
	// 3 USD at 0.50 USD per unit buys 6 native units.
	if got.Cmp(usd18(6)) != 0 {
		t.Fatalf("got %s want %s", got, usd18(6))
	}

	got, err = engine.QuoteNativeFixedAuction(ctx, 2)
	if err != nil {
		t.Fatalf("native fixed auction quote: %v", err)
	}
	if got.Cmp(usd18(3)) != 0 {
		t.Fatalf("got %s want %s", got, usd18(3))
	}
}

func TestFeedPricePassthrough(t *testing.T) {
	engine, registry, feed, _, admin := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.TokenFeedPrice(ctx, 1, "USDX"); !errors.Is(err, sale.ErrPegNotConfigured) {
		t.Fatalf("unset feed: got %v", err)
	}

	addr := feedAddr(0xAE)
	feed.Set(addr, big.NewInt(123450000), 8, "USDX / USD")
	if err := registry.SetTokenPegPrice(admin, 1, "USDX", usd18(1), addr); err != nil {
		t.Fatalf("set peg: %v", err)
	}
	round, err := engine.TokenFeedPrice(ctx, 1, "USDX")
	if err != nil {
		t.Fatalf("feed price: %v", err)
	}
	if round.Answer.Cmp(big.NewInt(123450000)) != 0 || round.Decimals != 8 || round.Description != "USDX / USD" {
		t.Fatalf("unexpected round: %+v", round)
	}

	if err := registry.SetNativePegPrice(admin, 1, usd18(1), addr); err != nil {
		t.Fatalf("set native peg: %v", err)
	}
	round, err = engine.NativeFeedPrice(ctx, 1)
	if err != nil {
		t.Fatalf("native feed price: %v", err)
	}
	if round.Answer.Cmp(big.NewInt(123450000)) != 0 {
		t.Fatalf("unexpected native round: %+v", round)
	}
}
