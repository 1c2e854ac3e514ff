package sale

import "errors"

var (
	ErrUnauthorized            = errors.New("sale: unauthorized")
	ErrInvalidAsset            = errors.New("sale: invalid asset")
	ErrUnknownToken            = errors.New("sale: token not registered")
	ErrInvalidAmount           = errors.New("sale: invalid amount")
	ErrInvalidDiscount         = errors.New("sale: discount outside [0,100]")
	ErrNilSchedule             = errors.New("sale: nil auction schedule")
	ErrInvalidAuctionWindow    = errors.New("sale: auction window invalid")
	ErrInvalidAuctionPrices    = errors.New("sale: auction prices invalid")
	ErrPegNotConfigured        = errors.New("sale: peg price not configured")
	ErrFixedPriceNotConfigured = errors.New("sale: fixed price not configured")
	ErrAuctionNotConfigured    = errors.New("sale: auction not configured")
	ErrAuctionNotStarted       = errors.New("sale: auction not started")
	ErrAuctionEnded            = errors.New("sale: auction ended")
	ErrAmountOverflow          = errors.New("sale: amount overflow")
	ErrNegativeAmount          = errors.New("sale: negative amount")
	ErrOracleAnswer            = errors.New("sale: oracle answer not positive")
	ErrFeedUnavailable         = errors.New("sale: price feed unavailable")
	ErrModulePaused            = errors.New("sale: module paused")
)
