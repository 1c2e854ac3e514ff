package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storefront/native/sale"
	"storefront/observability"
	"storefront/services/storefrontd/storage"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Registry    *sale.Registry
	Engine      *sale.Engine
	QuoteLog    *storage.Storage
	Admin       [20]byte
	BearerToken string
	Logger      *slog.Logger
	Metrics     *observability.StorefrontMetrics
}

// Server exposes the sale registry and pricing engine over HTTP. A single
// mutex serializes registry mutations against quote evaluation so a query
// never observes a half-written configuration.
type Server struct {
	registry *sale.Registry
	engine   *sale.Engine
	quoteLog *storage.Storage
	admin    [20]byte
	logger   *slog.Logger
	metrics  *observability.StorefrontMetrics

	mu     sync.Mutex
	router http.Handler
}

// New constructs a configured HTTP router with bearer authentication.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("registry and engine are required")
	}
	auth, err := NewAuthenticator(cfg.BearerToken)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		quoteLog: cfg.QuoteLog,
		admin:    cfg.Admin,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	srv.router = srv.buildRouter(auth)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(auth *Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(api chi.Router) {
		api.Use(auth.Middleware)
		api.Route("/sales/{saleID}", func(sr chi.Router) {
			sr.Route("/tokens/{symbol}", func(tr chi.Router) {
				tr.Put("/peg", s.handleSetTokenPeg)
				tr.Put("/fixed", s.handleSetTokenFixed)
				tr.Put("/discount", s.handleSetTokenDiscount)
				tr.Put("/markup", s.handleSetTokenMarkup)
				tr.Put("/auction", s.handleSetTokenAuction)
				tr.Get("/config", s.handleTokenConfig)
				tr.Get("/quote", s.handleTokenQuote)
				tr.Get("/feed", s.handleTokenFeed)
			})
			sr.Route("/native", func(nr chi.Router) {
				nr.Put("/peg", s.handleSetNativePeg)
				nr.Put("/fixed", s.handleSetNativeFixed)
				nr.Put("/discount", s.handleSetNativeDiscount)
				nr.Put("/markup", s.handleSetNativeMarkup)
				nr.Put("/auction", s.handleSetNativeAuction)
				nr.Get("/config", s.handleNativeConfig)
				nr.Get("/quote", s.handleNativeQuote)
				nr.Get("/feed", s.handleNativeFeed)
			})
			sr.Get("/quotes", s.handleRecentQuotes)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errUnknownMode = errors.New("unknown quote mode")

// statusForError maps engine sentinels onto HTTP statuses: authorization
// failures are 403, validation failures 400, unknown assets 404, modes that
// are not configured or outside their window 409, overflow 422, and oracle
// failures 502.
func statusForError(err error) int {
	switch {
	case errors.Is(err, sale.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, sale.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, sale.ErrInvalidAsset),
		errors.Is(err, sale.ErrInvalidAmount),
		errors.Is(err, sale.ErrNegativeAmount),
		errors.Is(err, sale.ErrInvalidDiscount),
		errors.Is(err, sale.ErrNilSchedule),
		errors.Is(err, sale.ErrInvalidAuctionWindow),
		errors.Is(err, sale.ErrInvalidAuctionPrices),
		errors.Is(err, errUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, sale.ErrModulePaused),
		errors.Is(err, sale.ErrPegNotConfigured),
		errors.Is(err, sale.ErrFixedPriceNotConfigured),
		errors.Is(err, sale.ErrAuctionNotConfigured),
		errors.Is(err, sale.ErrAuctionNotStarted),
		errors.Is(err, sale.ErrAuctionEnded):
		return http.StatusConflict
	case errors.Is(err, sale.ErrAmountOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sale.ErrOracleAnswer),
		errors.Is(err, sale.ErrFeedUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Warn("encode response", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		w.WriteHeader(status)
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return false
	}
	return true
}

func parseSaleID(r *http.Request) (sale.SaleID, error) {
	raw := chi.URLParam(r, "saleID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sale id %q", raw)
	}
	return sale.SaleID(id), nil
}

// parseAmount reads a base-10 integer amount. The registry and engine apply
// their own sign and range validation.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", raw)
	}
	return value, nil
}

func normalizeMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	switch mode {
	case "peg", "fixed", "auction", "fixed_auction":
		return mode, nil
	case "":
		return "", fmt.Errorf("%w: mode query parameter required", errUnknownMode)
	default:
		return "", fmt.Errorf("%w: %q", errUnknownMode, raw)
	}
}
