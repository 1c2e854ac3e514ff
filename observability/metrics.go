package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics bundles the collectors tracking quote serving, sale
// configuration writes, and oracle feed health for the storefront daemon.
type StorefrontMetrics struct {
	quotes       *prometheus.CounterVec
	quoteLatency *prometheus.HistogramVec
	configWrites *prometheus.CounterVec
	feedAnswer   *prometheus.GaugeVec
	feedErrors   *prometheus.CounterVec
}

var (
	storefrontOnce sync.Once
	storefrontReg  *StorefrontMetrics
)

// Storefront returns the lazily-initialised metrics registry for the
// storefront daemon.
func Storefront() *StorefrontMetrics {
	storefrontOnce.Do(func() {
		storefrontReg = &StorefrontMetrics{
			quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "storefront",
				Name:      "quotes_total",
				Help:      "Count of quote evaluations segmented by asset, pricing mode, and outcome.",
			}, []string{"asset", "mode", "outcome"}),
			quoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nhb",
				Subsystem: "storefront",
				Name:      "quote_duration_seconds",
				Help:      "Latency distribution for quote evaluation including oracle reads.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"mode"}),
			configWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "storefront",
				Name:      "config_writes_total",
				Help:      "Count of sale configuration mutations segmented by field and outcome.",
			}, []string{"field", "outcome"}),
			feedAnswer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nhb",
				Subsystem: "storefront",
				Name:      "feed_answer",
				Help:      "Latest oracle answer per feed pair, scaled by the feed's decimals.",
			}, []string{"pair"}),
			feedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "storefront",
				Name:      "feed_errors_total",
				Help:      "Count of oracle feed read failures segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			storefrontReg.quotes,
			storefrontReg.quoteLatency,
			storefrontReg.configWrites,
			storefrontReg.feedAnswer,
			storefrontReg.feedErrors,
		)
	})
	return storefrontReg
}

// ObserveQuote records one quote evaluation. Mode should be one of the
// pricing mode strings served by the daemon (peg, fixed, auction,
// fixed_auction).
func (m *StorefrontMetrics) ObserveQuote(asset, mode string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.quotes.WithLabelValues(labelAsset(asset), labelMode(mode), outcome).Inc()
	m.quoteLatency.WithLabelValues(labelMode(mode)).Observe(duration.Seconds())
}

// RecordConfigWrite counts a registry mutation attempt for the supplied field
// name (peg, fixed, discount, markup, auction).
func (m *StorefrontMetrics) RecordConfigWrite(field string, err error) {
	if m == nil {
		return
	}
	if field = strings.TrimSpace(field); field == "" {
		field = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.configWrites.WithLabelValues(field, outcome).Inc()
}

// RecordFeedAnswer publishes an oracle round so dashboards can track the
// price the engine is converting against.
func (m *StorefrontMetrics) RecordFeedAnswer(pair string, answer *big.Int, decimals uint8) {
	if m == nil || answer == nil {
		return
	}
	value := bigToFloat(answer)
	if scale := math.Pow10(int(decimals)); scale > 0 {
		value /= scale
	}
	if pair = strings.TrimSpace(pair); pair == "" {
		pair = "unknown"
	}
	m.feedAnswer.WithLabelValues(pair).Set(value)
}

// RecordFeedError increments the feed failure counter. Reasons should be
// stable strings such as "transport" or "stale_answer" so alerts stay
// consistent.
func (m *StorefrontMetrics) RecordFeedError(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.feedErrors.WithLabelValues(reason).Inc()
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func labelMode(mode string) string {
	trimmed := strings.ToLower(strings.TrimSpace(mode))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
