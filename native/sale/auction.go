package sale

import (
	"fmt"
	"math/big"
)

// AuctionCurve computes the current auction price for a schedule at a given
// time. Implementations must be pure, return StartPrice at or before
// StartTime, ReservePrice at or after EndTime, and be non-increasing in
// between. The engine clamps at the boundaries, so curves only shape the
// interior of the window.
type AuctionCurve interface {
	PriceAt(schedule AuctionSchedule, now uint64) *big.Int
}

// LinearCurve decays the price on a straight line between the two boundary
// prices. Floor division happens on the subtracted term, so rounding always
// favors the seller.
type LinearCurve struct{}

// PriceAt implements the AuctionCurve interface.
func (LinearCurve) PriceAt(schedule AuctionSchedule, now uint64) *big.Int {
	start := cloneBigInt(schedule.StartPrice)
	if now <= schedule.StartTime || schedule.EndTime <= schedule.StartTime {
		return start
	}
	if now >= schedule.EndTime {
		return cloneBigInt(schedule.ReservePrice)
	}
	drop := new(big.Int).Sub(start, cloneBigInt(schedule.ReservePrice))
	drop.Mul(drop, new(big.Int).SetUint64(now-schedule.StartTime))
	drop.Quo(drop, new(big.Int).SetUint64(schedule.EndTime-schedule.StartTime))
	return start.Sub(start, drop)
}

// QuadraticCurve decays the price proportionally to the square of the
// remaining window, dropping faster early and flattening towards the
// reserve. It satisfies the same boundary conditions as LinearCurve.
type QuadraticCurve struct{}

// PriceAt implements the AuctionCurve interface.
func (QuadraticCurve) PriceAt(schedule AuctionSchedule, now uint64) *big.Int {
	if now <= schedule.StartTime || schedule.EndTime <= schedule.StartTime {
		return cloneBigInt(schedule.StartPrice)
	}
	if now >= schedule.EndTime {
		return cloneBigInt(schedule.ReservePrice)
	}
	reserve := cloneBigInt(schedule.ReservePrice)
	delta := new(big.Int).Sub(cloneBigInt(schedule.StartPrice), reserve)
	remaining := new(big.Int).SetUint64(schedule.EndTime - now)
	window := new(big.Int).SetUint64(schedule.EndTime - schedule.StartTime)
	delta.Mul(delta, remaining)
	delta.Mul(delta, remaining)
	delta.Quo(delta, new(big.Int).Mul(window, window))
	return reserve.Add(reserve, delta)
}

func sanitizeSchedule(schedule *AuctionSchedule) (*AuctionSchedule, error) {
	if schedule == nil {
		return nil, ErrNilSchedule
	}
	if schedule.StartTime >= schedule.EndTime {
		return nil, fmt.Errorf("%w: start %d end %d", ErrInvalidAuctionWindow, schedule.StartTime, schedule.EndTime)
	}
	copySchedule := schedule.Clone()
	if copySchedule.StartPrice.Sign() < 0 || copySchedule.ReservePrice.Sign() < 0 {
		return nil, fmt.Errorf("%w: prices must be non-negative", ErrInvalidAuctionPrices)
	}
	if copySchedule.StartPrice.Cmp(copySchedule.ReservePrice) < 0 {
		return nil, fmt.Errorf("%w: start price below reserve", ErrInvalidAuctionPrices)
	}
	return copySchedule, nil
}
