package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront/native/sale"
	"storefront/services/storefrontd/feeds"
	"storefront/services/storefrontd/storage"
)

type pegRequest struct {
	UsdPrice string `json:"usd_price"`
	Feed     string `json:"feed"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type percentRequest struct {
	Percent uint32 `json:"percent"`
}

type auctionRequest struct {
	StartTime    uint64 `json:"start_time"`
	EndTime      uint64 `json:"end_time"`
	StartPrice   string `json:"start_price"`
	ReservePrice string `json:"reserve_price"`
}

type auctionPayload struct {
	StartTime    uint64 `json:"start_time"`
	EndTime      uint64 `json:"end_time"`
	StartPrice   string `json:"start_price"`
	ReservePrice string `json:"reserve_price"`
}

type tokenConfigPayload struct {
	SaleID          uint64          `json:"sale_id"`
	Asset           string          `json:"asset"`
	UsdPeggedPrice  string          `json:"usd_pegged_price"`
	FixedPrice      string          `json:"fixed_price"`
	DiscountPercent uint32          `json:"discount_percent"`
	MarkupPercent   uint16          `json:"markup_percent"`
	PriceFeed       string          `json:"price_feed,omitempty"`
	Auction         *auctionPayload `json:"auction,omitempty"`
}

type nativeConfigPayload struct {
	tokenConfigPayload
	FixedNativePrice string `json:"fixed_native_price"`
}

type quotePayload struct {
	SaleID  uint64 `json:"sale_id"`
	Asset   string `json:"asset"`
	Mode    string `json:"mode"`
	Amount  string `json:"amount"`
	QuoteID string `json:"quote_id,omitempty"`
}

type feedPayload struct {
	Answer      string `json:"answer"`
	Decimals    uint8  `json:"decimals"`
	Description string `json:"description,omitempty"`
}

type loggedQuote struct {
	ID     string `json:"id"`
	At     string `json:"ts"`
	SaleID uint64 `json:"sale_id"`
	Asset  string `json:"asset"`
	Mode   string `json:"mode"`
	Amount string `json:"amount"`
}

func auctionToPayload(schedule *sale.AuctionSchedule) *auctionPayload {
	if schedule == nil {
		return nil
	}
	return &auctionPayload{
		StartTime:    schedule.StartTime,
		EndTime:      schedule.EndTime,
		StartPrice:   schedule.StartPrice.String(),
		ReservePrice: schedule.ReservePrice.String(),
	}
}

func feedToString(feed sale.FeedAddress) string {
	if feed.IsZero() {
		return ""
	}
	return fmt.Sprintf("0x%x", feed[:])
}

func tokenConfigToPayload(saleID sale.SaleID, asset string, cfg *sale.TokenSaleConfig) tokenConfigPayload {
	return tokenConfigPayload{
		SaleID:          uint64(saleID),
		Asset:           asset,
		UsdPeggedPrice:  cfg.UsdPeggedPrice.String(),
		FixedPrice:      cfg.FixedPrice.String(),
		DiscountPercent: cfg.DiscountPercent,
		MarkupPercent:   cfg.MarkupPercent,
		PriceFeed:       feedToString(cfg.PriceFeed),
		Auction:         auctionToPayload(cfg.Auction),
	}
}

func nativeConfigToPayload(saleID sale.SaleID, cfg *sale.NativeSaleConfig) nativeConfigPayload {
	return nativeConfigPayload{
		tokenConfigPayload: tokenConfigToPayload(saleID, sale.NativeAsset, &cfg.TokenSaleConfig),
		FixedNativePrice:   cfg.FixedNativePrice.String(),
	}
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
}

// respondTokenConfig reads back the stored config after a mutation so the
// operator sees the full record they just changed.
func (s *Server) respondTokenConfig(w http.ResponseWriter, saleID sale.SaleID, symbol string) {
	cfg, err := s.registry.TokenConfig(saleID, symbol)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenConfigToPayload(saleID, symbol, cfg))
}

func (s *Server) respondNativeConfig(w http.ResponseWriter, saleID sale.SaleID) {
	cfg, err := s.registry.NativeConfig(saleID)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, nativeConfigToPayload(saleID, cfg))
}

func (s *Server) mutate(field string, apply func() error) error {
	s.mu.Lock()
	err := apply()
	s.mu.Unlock()
	s.metrics.RecordConfigWrite(field, err)
	return err
}

func (s *Server) handleSetTokenPeg(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := symbolParam(r)
	var req pegRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, err := parseAmount(req.UsdPrice)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	feed, err := feeds.ParseFeedAddress(req.Feed)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mutate("peg", func() error {
		return s.registry.SetTokenPegPrice(s.admin, saleID, symbol, price, feed)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondTokenConfig(w, saleID, symbol)
}

func (s *Server) handleSetTokenFixed(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := symbolParam(r)
	var req priceRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mutate("fixed", func() error {
		return s.registry.SetTokenFixedPrice(s.admin, saleID, symbol, price)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondTokenConfig(w, saleID, symbol)
}

func (s *Server) handleSetTokenDiscount(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := symbolParam(r)
	var req percentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.mutate("discount", func() error {
		return s.registry.SetTokenDiscount(s.admin, saleID, symbol, req.Percent)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondTokenConfig(w, saleID, symbol)
}

func (s *Server) handleSetTokenMarkup(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := symbolParam(r)
	var req percentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Percent > math.MaxUint16 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("markup percent %d out of range", req.Percent))
		return
	}
	if err := s.mutate("markup", func() error {
		return s.registry.SetTokenMarkup(s.admin, saleID, symbol, uint16(req.Percent))
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondTokenConfig(w, saleID, symbol)
}

func (s *Server) decodeAuction(w http.ResponseWriter, r *http.Request) (*sale.AuctionSchedule, bool) {
	var req auctionRequest
	if !s.decode(w, r, &req) {
		return nil, false
	}
	start, err := parseAmount(req.StartPrice)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	reserve, err := parseAmount(req.ReservePrice)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return &sale.AuctionSchedule{
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		StartPrice:   start,
		ReservePrice: reserve,
	}, true
}

func (s *Server) handleSetTokenAuction(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := symbolParam(r)
	schedule, ok := s.decodeAuction(w, r)
	if !ok {
		return
	}
	if err := s.mutate("auction", func() error {
		return s.registry.SetTokenAuction(s.admin, saleID, symbol, schedule)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondTokenConfig(w, saleID, symbol)
}

func (s *Server) handleSetNativePeg(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req pegRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, err := parseAmount(req.UsdPrice)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	feed, err := feeds.ParseFeedAddress(req.Feed)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mutate("peg", func() error {
		return s.registry.SetNativePegPrice(s.admin, saleID, price, feed)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondNativeConfig(w, saleID)
}

func (s *Server) handleSetNativeFixed(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req priceRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mutate("fixed", func() error {
		return s.registry.SetNativeFixedPrice(s.admin, saleID, price)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondNativeConfig(w, saleID)
}

func (s *Server) handleSetNativeDiscount(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req percentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.mutate("discount", func() error {
		return s.registry.SetNativeDiscount(s.admin, saleID, req.Percent)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondNativeConfig(w, saleID)
}

func (s *Server) handleSetNativeMarkup(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req percentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Percent > math.MaxUint16 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("markup percent %d out of range", req.Percent))
		return
	}
	if err := s.mutate("markup", func() error {
		return s.registry.SetNativeMarkup(s.admin, saleID, uint16(req.Percent))
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondNativeConfig(w, saleID)
}

func (s *Server) handleSetNativeAuction(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	schedule, ok := s.decodeAuction(w, r)
	if !ok {
		return
	}
	if err := s.mutate("auction", func() error {
		return s.registry.SetNativeAuction(s.admin, saleID, schedule)
	}); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.respondNativeConfig(w, saleID)
}

func (s *Server) handleTokenConfig(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondTokenConfig(w, saleID, symbolParam(r))
}

func (s *Server) handleNativeConfig(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondNativeConfig(w, saleID)
}

func (s *Server) quoteToken(ctx context.Context, saleID sale.SaleID, symbol, mode string) (*big.Int, error) {
	switch mode {
	case "peg":
		return s.engine.QuoteTokenPegged(ctx, saleID, symbol)
	case "fixed":
		return s.engine.QuoteTokenFixed(ctx, saleID, symbol)
	case "auction":
		return s.engine.QuoteTokenAuction(ctx, saleID, symbol)
	case "fixed_auction":
		return s.engine.QuoteTokenFixedAuction(ctx, saleID, symbol)
	}
	return nil, fmt.Errorf("%w: %q", errUnknownMode, mode)
}

func (s *Server) quoteNative(ctx context.Context, saleID sale.SaleID, mode string) (*big.Int, error) {
	switch mode {
	case "peg":
		return s.engine.QuoteNativePegged(ctx, saleID)
	case "fixed":
		return s.engine.QuoteNativeFixed(ctx, saleID)
	case "auction":
		return s.engine.QuoteNativeAuction(ctx, saleID)
	case "fixed_auction":
		return s.engine.QuoteNativeFixedAuction(ctx, saleID)
	}
	return nil, fmt.Errorf("%w: %q", errUnknownMode, mode)
}

func (s *Server) serveQuote(w http.ResponseWriter, r *http.Request, saleID sale.SaleID, asset string,
	eval func(ctx context.Context, mode string) (*big.Int, error)) {
	mode, err := normalizeMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	s.mu.Lock()
	amount, err := eval(r.Context(), mode)
	s.mu.Unlock()
	s.metrics.ObserveQuote(asset, mode, time.Since(start), err)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	payload := quotePayload{
		SaleID: uint64(saleID),
		Asset:  asset,
		Mode:   mode,
		Amount: amount.String(),
	}
	if s.quoteLog != nil {
		id, logErr := s.quoteLog.RecordQuote(r.Context(), storage.Quote{
			SaleID: uint64(saleID),
			Asset:  asset,
			Mode:   mode,
			Amount: payload.Amount,
		})
		if logErr != nil {
			s.log().Warn("append quote log", "error", logErr.Error())
		} else {
			payload.QuoteID = id
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleTokenQuote(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := symbolParam(r)
	s.serveQuote(w, r, saleID, symbol, func(ctx context.Context, mode string) (*big.Int, error) {
		return s.quoteToken(ctx, saleID, symbol, mode)
	})
}

func (s *Server) handleNativeQuote(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.serveQuote(w, r, saleID, sale.NativeAsset, func(ctx context.Context, mode string) (*big.Int, error) {
		return s.quoteNative(ctx, saleID, mode)
	})
}

func (s *Server) serveFeed(w http.ResponseWriter, round sale.RoundData, err error) {
	if err != nil {
		s.metrics.RecordFeedError(feedErrorReason(err))
		s.writeError(w, statusForError(err), err)
		return
	}
	s.metrics.RecordFeedAnswer(round.Description, round.Answer, round.Decimals)
	s.writeJSON(w, http.StatusOK, feedPayload{
		Answer:      round.Answer.String(),
		Decimals:    round.Decimals,
		Description: round.Description,
	})
}

func feedErrorReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrOracleAnswer):
		return "stale_answer"
	case errors.Is(err, sale.ErrFeedUnavailable):
		return "transport"
	case errors.Is(err, sale.ErrPegNotConfigured):
		return "not_configured"
	default:
		return "unknown"
	}
}

func (s *Server) handleTokenFeed(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	round, err := s.engine.TokenFeedPrice(r.Context(), saleID, symbolParam(r))
	s.serveFeed(w, round, err)
}

func (s *Server) handleNativeFeed(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	round, err := s.engine.NativeFeedPrice(r.Context(), saleID)
	s.serveFeed(w, round, err)
}

func (s *Server) handleRecentQuotes(w http.ResponseWriter, r *http.Request) {
	saleID, err := parseSaleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.quoteLog == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("quote log disabled"))
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	quotes, err := s.quoteLog.RecentQuotes(r.Context(), uint64(saleID), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	payload := make([]loggedQuote, 0, len(quotes))
	for _, quote := range quotes {
		payload = append(payload, loggedQuote{
			ID:     quote.ID,
			At:     quote.At.UTC().Format(time.RFC3339),
			SaleID: quote.SaleID,
			Asset:  quote.Asset,
			Mode:   quote.Mode,
			Amount: quote.Amount,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}
