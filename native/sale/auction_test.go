package sale_test

import (
	"math/big"
	"testing"

	"storefront/native/sale"
)

func testSchedule() sale.AuctionSchedule {
	return sale.AuctionSchedule{
		StartTime:    0,
		EndTime:      100,
		StartPrice:   big.NewInt(1000),
		ReservePrice: big.NewInt(0),
	}
}

func TestLinearCurveBoundaries(t *testing.T) {
	curve := sale.LinearCurve{}
	schedule := sale.AuctionSchedule{
		StartTime:    50,
		EndTime:      150,
		StartPrice:   big.NewInt(900),
		ReservePrice: big.NewInt(300),
	}

	if got := curve.PriceAt(schedule, 10); got.Cmp(schedule.StartPrice) != 0 {
		t.Fatalf("before window: got %s want %s", got, schedule.StartPrice)
	}
	if got := curve.PriceAt(schedule, 50); got.Cmp(schedule.StartPrice) != 0 {
		t.Fatalf("at start: got %s want %s", got, schedule.StartPrice)
	}
	if got := curve.PriceAt(schedule, 150); got.Cmp(schedule.ReservePrice) != 0 {
		t.Fatalf("at end: got %s want %s", got, schedule.ReservePrice)
	}
	if got := curve.PriceAt(schedule, 500); got.Cmp(schedule.ReservePrice) != 0 {
		t.Fatalf("after window: got %s want %s", got, schedule.ReservePrice)
	}
}

func TestLinearCurveMidpoint(t *testing.T) {
	curve := sale.LinearCurve{}
	if got := curve.PriceAt(testSchedule(), 50); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("midpoint: got %s want 500", got)
	}
}

func TestLinearCurveRoundsTowardSeller(t *testing.T) {
	curve := sale.LinearCurve{}
	schedule := sale.AuctionSchedule{
		StartTime:    0,
		EndTime:      3,
		StartPrice:   big.NewInt(10),
		ReservePrice: big.NewInt(0),
	}
	// The exact line value at t=1 is 6.67; flooring the drop keeps the
	// quoted price above the line.
	if got := curve.PriceAt(schedule, 1); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("got %s want 7", got)
	}
}

func TestQuadraticCurve(t *testing.T) {
	curve := sale.QuadraticCurve{}
	schedule := testSchedule()

	if got := curve.PriceAt(schedule, 0); got.Cmp(schedule.StartPrice) != 0 {
		t.Fatalf("at start: got %s want %s", got, schedule.StartPrice)
	}
	if got := curve.PriceAt(schedule, 100); got.Cmp(schedule.ReservePrice) != 0 {
		t.Fatalf("at end: got %s want %s", got, schedule.ReservePrice)
	}
	// Halfway through, a quarter of the delta remains.
	if got := curve.PriceAt(schedule, 50); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("midpoint: got %s want 250", got)
	}
}

func TestCurvesNonIncreasing(t *testing.T) {
	schedule := sale.AuctionSchedule{
		StartTime:    0,
		EndTime:      97,
		StartPrice:   big.NewInt(123457),
		ReservePrice: big.NewInt(901),
	}
	for _, curve := range []sale.AuctionCurve{sale.LinearCurve{}, sale.QuadraticCurve{}} {
		prev := curve.PriceAt(schedule, 0)
		for now := uint64(1); now <= schedule.EndTime+5; now++ {
			got := curve.PriceAt(schedule, now)
			if got.Cmp(prev) > 0 {
				t.Fatalf("%T increased at %d: %s -> %s", curve, now, prev, got)
			}
			if got.Cmp(schedule.ReservePrice) < 0 || got.Cmp(schedule.StartPrice) > 0 {
				t.Fatalf("%T left the price band at %d: %s", curve, now, got)
			}
			prev = got
		}
	}
}

func TestCurvesDoNotAliasSchedule(t *testing.T) {
	for _, curve := range []sale.AuctionCurve{sale.LinearCurve{}, sale.QuadraticCurve{}} {
		schedule := testSchedule()
		got := curve.PriceAt(schedule, 0)
		got.SetInt64(-1)
		if schedule.StartPrice.Cmp(big.NewInt(1000)) != 0 {
			t.Fatalf("%T aliased the schedule price", curve)
		}
	}
}
