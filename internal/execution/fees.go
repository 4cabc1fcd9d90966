package execution

import (
	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
)

// FeeSchedule is a market's commission/tax rates, expressed as
// percentages (0.015 means 0.015%).
type FeeSchedule struct {
	CommissionRatePct     decimal.Decimal
	TransactionTaxRatePct decimal.Decimal
	SurtaxRatePct         decimal.Decimal // percentage of the transaction tax, sell only
}

// feeSchedules holds the KRX fee catalogue by market. KONEX carries a
// lower transaction tax; every other rate is uniform across boards.
var feeSchedules = map[contracts.Market]FeeSchedule{
	contracts.MarketKOSPI: {
		CommissionRatePct:     decimal.NewFromFloat(0.015),
		TransactionTaxRatePct: decimal.NewFromFloat(0.23),
		SurtaxRatePct:         decimal.NewFromFloat(15),
	},
	contracts.MarketKOSDAQ: {
		CommissionRatePct:     decimal.NewFromFloat(0.015),
		TransactionTaxRatePct: decimal.NewFromFloat(0.23),
		SurtaxRatePct:         decimal.NewFromFloat(15),
	},
	contracts.MarketKONEX: {
		CommissionRatePct:     decimal.NewFromFloat(0.015),
		TransactionTaxRatePct: decimal.NewFromFloat(0.10),
		SurtaxRatePct:         decimal.NewFromFloat(15),
	},
}

func scheduleFor(market contracts.Market) FeeSchedule {
	s, ok := feeSchedules[market]
	if !ok {
		return feeSchedules[contracts.MarketKOSPI]
	}
	return s
}

// TransactionCosts breaks down one side of a trade's fees, each
// component rounded to the nearest won.
type TransactionCosts struct {
	GrossAmount    decimal.Decimal
	Commission     decimal.Decimal
	TransactionTax decimal.Decimal
	Surtax         decimal.Decimal
}

// TotalFees sums every cost component.
func (c TransactionCosts) TotalFees() decimal.Decimal {
	return c.Commission.Add(c.TransactionTax).Add(c.Surtax)
}

// NetAmount is cash needed (buy) or received (sell) after fees.
func (c TransactionCosts) NetAmount(isBuy bool) decimal.Decimal {
	if isBuy {
		return c.GrossAmount.Add(c.TotalFees())
	}
	return c.GrossAmount.Sub(c.TotalFees())
}

// CalculateBuyCosts computes the buy-side transaction costs. Buy orders
// carry commission only; the transaction tax and surtax apply to sells.
func CalculateBuyCosts(market contracts.Market, quantity int64, price decimal.Decimal) TransactionCosts {
	sched := scheduleFor(market)
	gross := price.Mul(decimal.NewFromInt(quantity))
	commission := gross.Mul(sched.CommissionRatePct).Div(decimal.NewFromInt(100)).Round(0)
	return TransactionCosts{GrossAmount: gross, Commission: commission}
}

// CalculateSellCosts computes the sell-side transaction costs.
func CalculateSellCosts(market contracts.Market, quantity int64, price decimal.Decimal) TransactionCosts {
	sched := scheduleFor(market)
	gross := price.Mul(decimal.NewFromInt(quantity))
	commission := gross.Mul(sched.CommissionRatePct).Div(decimal.NewFromInt(100)).Round(0)
	tax := gross.Mul(sched.TransactionTaxRatePct).Div(decimal.NewFromInt(100)).Round(0)
	surtax := tax.Mul(sched.SurtaxRatePct).Div(decimal.NewFromInt(100)).Round(0)
	return TransactionCosts{GrossAmount: gross, Commission: commission, TransactionTax: tax, Surtax: surtax}
}

// RoundTripResult is the full accounting for a closed round trip.
type RoundTripResult struct {
	BuyCosts  TransactionCosts
	SellCosts TransactionCosts
	TotalFees decimal.Decimal
	GrossPnL  decimal.Decimal
	NetPnL    decimal.Decimal
	NetPnLPct decimal.Decimal
	Breakeven decimal.Decimal
}

// CalculateRoundTripCost computes the buy+sell cost breakdown, net P&L,
// and the break-even sell price for a completed round trip. This is the
// pure-function calculator the Signal Generator calls to size targets.
func CalculateRoundTripCost(market contracts.Market, quantity int64, buyPrice, sellPrice decimal.Decimal) RoundTripResult {
	buyCosts := CalculateBuyCosts(market, quantity, buyPrice)
	sellCosts := CalculateSellCosts(market, quantity, sellPrice)

	totalFees := buyCosts.TotalFees().Add(sellCosts.TotalFees())
	grossPnL := sellPrice.Sub(buyPrice).Mul(decimal.NewFromInt(quantity))
	netPnL := grossPnL.Sub(totalFees)

	var netPnLPct decimal.Decimal
	buyNet := buyCosts.NetAmount(true)
	if buyNet.IsPositive() {
		netPnLPct = netPnL.Div(buyNet).Mul(decimal.NewFromInt(100))
	}

	return RoundTripResult{
		BuyCosts:  buyCosts,
		SellCosts: sellCosts,
		TotalFees: totalFees,
		GrossPnL:  grossPnL,
		NetPnL:    netPnL,
		NetPnLPct: netPnLPct,
		Breakeven: BreakevenPrice(market, buyPrice),
	}
}

// BreakevenPrice returns the sell price at which a round trip nets zero,
// accounting for both sides' fees: buy_price*(1+buy_pct) / (1-sell_pct).
func BreakevenPrice(market contracts.Market, buyPrice decimal.Decimal) decimal.Decimal {
	sched := scheduleFor(market)
	hundred := decimal.NewFromInt(100)

	buyPct := sched.CommissionRatePct.Div(hundred)
	sellCommissionPct := sched.CommissionRatePct.Div(hundred)
	sellTaxPct := sched.TransactionTaxRatePct.Div(hundred)
	sellSurtaxPct := sellTaxPct.Mul(sched.SurtaxRatePct).Div(hundred)
	sellPct := sellCommissionPct.Add(sellTaxPct).Add(sellSurtaxPct)

	denominator := decimal.NewFromInt(1).Sub(sellPct)
	if denominator.IsZero() {
		return decimal.Zero
	}
	return buyPrice.Mul(decimal.NewFromInt(1).Add(buyPct)).Div(denominator)
}
