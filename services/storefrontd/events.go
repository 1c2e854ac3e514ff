package storefrontd

import (
	"log/slog"

	"storefront/core/events"
	"storefront/observability"
)

// logEmitter forwards registry events to the structured log and the sale
// event counter so configuration changes are visible without an indexer.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(event events.Event) {
	observability.Events().RecordSaleEvent(event.EventType())
	if e.logger == nil {
		return
	}
	var (
		saleID uint64
		asset  string
	)
	switch ev := event.(type) {
	case events.SalePegUpdated:
		saleID, asset = ev.SaleID, ev.Asset
	case events.SaleFixedPriceUpdated:
		saleID, asset = ev.SaleID, ev.Asset
	case events.SaleDiscountUpdated:
		saleID, asset = ev.SaleID, ev.Asset
	case events.SaleMarkupUpdated:
		saleID, asset = ev.SaleID, ev.Asset
	case events.SaleAuctionScheduled:
		saleID, asset = ev.SaleID, ev.Asset
	default:
		e.logger.Info("sale event", slog.String("type", event.EventType()))
		return
	}
	e.logger.Info("sale event",
		slog.String("type", event.EventType()),
		slog.Uint64("sale_id", saleID),
		slog.String("asset", asset),
	)
}

// configPauses adapts the static paused flag from the daemon configuration to
// the registry's pause view.
type configPauses struct {
	paused bool
}

func (p configPauses) IsPaused(module string) bool {
	return p.paused && module == "sale"
}
