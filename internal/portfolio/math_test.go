package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRecomputeBuyAvgPrice(t *testing.T) {
	got := recomputeBuyAvgPrice(100, dec("70000"), 50, dec("73000"))
	want := dec("70000").Mul(decimal.NewFromInt(100)).Add(dec("73000").Mul(decimal.NewFromInt(50))).Div(decimal.NewFromInt(150))
	if !got.Equal(want) {
		t.Errorf("recomputeBuyAvgPrice() = %s, want %s", got, want)
	}
}

func TestRealizedPnLOnSell(t *testing.T) {
	// S3 scenario numbers: sell 10 @ 75000 against avg 70000, fees 2202.
	got := realizedPnLOnSell(dec("75000"), dec("70000"), 10, dec("2202"))
	want := dec("47798")
	if !got.Equal(want) {
		t.Errorf("realizedPnLOnSell() = %s, want %s", got, want)
	}
}

func TestAdvanceTrailingStop_Monotonic(t *testing.T) {
	// S2 scenario: buy at 70000, trailing distance 10%, seeded trail 63000.
	highest, trailing := dec("70000"), dec("63000")

	highest, trailing = advanceTrailingStop(highest, trailing, dec("90000"), dec("10"))
	if !highest.Equal(dec("90000")) {
		t.Errorf("highest after rise = %s, want 90000", highest)
	}
	if !trailing.Equal(dec("81000")) {
		t.Errorf("trailing after rise = %s, want 81000", trailing)
	}

	// Price falls to 80000: no new high, trailing must not regress.
	highest, trailing = advanceTrailingStop(highest, trailing, dec("80000"), dec("10"))
	if !trailing.Equal(dec("81000")) {
		t.Errorf("trailing after fall = %s, want unchanged 81000", trailing)
	}

	// Price falls further to 79000: still no regression below 81000.
	_, trailing = advanceTrailingStop(highest, trailing, dec("79000"), dec("10"))
	if trailing.LessThan(dec("81000")) {
		t.Errorf("trailing must never decrease, got %s", trailing)
	}
}

func TestCashDeltaForFill_BuyDebitsPriceQuantityPlusFees(t *testing.T) {
	got := cashDeltaForFill(contracts.Fill{Side: contracts.SideBuy, Price: dec("70000"), Quantity: 10, Fees: dec("105")})
	want := dec("-700105")
	if !got.Equal(want) {
		t.Errorf("cashDeltaForFill(BUY) = %s, want %s", got, want)
	}
}

func TestCashDeltaForFill_SellCreditsPriceQuantityMinusFees(t *testing.T) {
	// S3 scenario numbers: sell 10 @ 75000, fees 2202.
	got := cashDeltaForFill(contracts.Fill{Side: contracts.SideSell, Price: dec("75000"), Quantity: 10, Fees: dec("2202")})
	want := dec("747798")
	if !got.Equal(want) {
		t.Errorf("cashDeltaForFill(SELL) = %s, want %s", got, want)
	}
}

func TestInitialStopPrices(t *testing.T) {
	stop, take := initialStopPrices(dec("70000"), dec("10"), dec("20"))
	if !stop.Equal(dec("63000")) {
		t.Errorf("stop = %s, want 63000", stop)
	}
	if !take.Equal(dec("84000")) {
		t.Errorf("take = %s, want 84000", take)
	}
}
