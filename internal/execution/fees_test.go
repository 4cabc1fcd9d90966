package execution

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
)

func TestCalculateRoundTripCost_S3Scenario(t *testing.T) {
	res := CalculateRoundTripCost(contracts.MarketKOSPI, 10, decimal.NewFromInt(70000), decimal.NewFromInt(75000))

	checks := []struct {
		name string
		got  decimal.Decimal
		want int64
	}{
		{"buy commission", res.BuyCosts.Commission, 105},
		{"sell commission", res.SellCosts.Commission, 113},
		{"transaction tax", res.SellCosts.TransactionTax, 1725},
		{"surtax", res.SellCosts.Surtax, 259},
		{"total fees", res.TotalFees, 2202},
		{"gross pnl", res.GrossPnL, 50000},
		{"net pnl", res.NetPnL, 47798},
	}
	for _, c := range checks {
		if !c.got.Equal(decimal.NewFromInt(c.want)) {
			t.Errorf("%s = %v, want %d", c.name, c.got, c.want)
		}
	}

	pct, _ := res.NetPnLPct.Float64()
	if pct < 6.8 || pct > 6.9 {
		t.Errorf("NetPnLPct = %v, want ~6.83", pct)
	}
}

func TestCalculateBuyCosts_NoTax(t *testing.T) {
	c := CalculateBuyCosts(contracts.MarketKOSPI, 10, decimal.NewFromInt(70000))
	if !c.TransactionTax.IsZero() || !c.Surtax.IsZero() {
		t.Errorf("buy costs should carry no tax/surtax, got tax=%v surtax=%v", c.TransactionTax, c.Surtax)
	}
}

func TestScheduleFor_KonexLowerTax(t *testing.T) {
	konex := scheduleFor(contracts.MarketKONEX)
	kospi := scheduleFor(contracts.MarketKOSPI)
	if !konex.TransactionTaxRatePct.LessThan(kospi.TransactionTaxRatePct) {
		t.Errorf("KONEX tax rate %v should be lower than KOSPI %v", konex.TransactionTaxRatePct, kospi.TransactionTaxRatePct)
	}
}

func TestBreakevenPrice_AboveBuyPrice(t *testing.T) {
	buy := decimal.NewFromInt(70000)
	breakeven := BreakevenPrice(contracts.MarketKOSPI, buy)
	if !breakeven.GreaterThan(buy) {
		t.Errorf("breakeven %v should exceed buy price %v", breakeven, buy)
	}
}
