package events

import "math/big"

const (
	// TypeSalePegUpdated is emitted when a sale's USD peg price or feed
	// address changes.
	TypeSalePegUpdated = "sale.peg.updated"
	// TypeSaleFixedPriceUpdated is emitted when a sale's fixed price in the
	// asset's own units changes.
	TypeSaleFixedPriceUpdated = "sale.fixed_price.updated"
	// TypeSaleDiscountUpdated is emitted when a sale's discount percentage
	// changes.
	TypeSaleDiscountUpdated = "sale.discount.updated"
	// TypeSaleMarkupUpdated is emitted when a sale's markup percentage
	// changes.
	TypeSaleMarkupUpdated = "sale.markup.updated"
	// TypeSaleAuctionScheduled is emitted when a sale's Dutch auction window
	// is configured.
	TypeSaleAuctionScheduled = "sale.auction.scheduled"
)

// SalePegUpdated captures a peg price configuration change. Asset is the
// token symbol, or the native unit symbol for native records.
type SalePegUpdated struct {
	SaleID   uint64
	Asset    string
	UsdPrice *big.Int
	Feed     [20]byte
}

// EventType implements the Event interface.
func (SalePegUpdated) EventType() string { return TypeSalePegUpdated }

// SaleFixedPriceUpdated captures a fixed price configuration change.
type SaleFixedPriceUpdated struct {
	SaleID uint64
	Asset  string
	Price  *big.Int
}

// EventType implements the Event interface.
func (SaleFixedPriceUpdated) EventType() string { return TypeSaleFixedPriceUpdated }

// SaleDiscountUpdated captures a discount change.
type SaleDiscountUpdated struct {
	SaleID  uint64
	Asset   string
	Percent uint32
}

// EventType implements the Event interface.
func (SaleDiscountUpdated) EventType() string { return TypeSaleDiscountUpdated }

// SaleMarkupUpdated captures a markup change.
type SaleMarkupUpdated struct {
	SaleID  uint64
	Asset   string
	Percent uint16
}

// EventType implements the Event interface.
func (SaleMarkupUpdated) EventType() string { return TypeSaleMarkupUpdated }

// SaleAuctionScheduled captures a configured Dutch auction window.
type SaleAuctionScheduled struct {
	SaleID       uint64
	Asset        string
	StartTime    uint64
	EndTime      uint64
	StartPrice   *big.Int
	ReservePrice *big.Int
}

// EventType implements the Event interface.
func (SaleAuctionScheduled) EventType() string { return TypeSaleAuctionScheduled }
