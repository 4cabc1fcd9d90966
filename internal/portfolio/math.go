package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/minjunpark/kquant/internal/contracts"
)

// recomputeBuyAvgPrice implements the weighted-average cost basis update
// from a BUY fill: (old_qty*old_avg + fill_qty*fill_price) / (old_qty+fill_qty).
func recomputeBuyAvgPrice(oldQty int64, oldAvg decimal.Decimal, fillQty int64, fillPrice decimal.Decimal) decimal.Decimal {
	oldCost := oldAvg.Mul(decimal.NewFromInt(oldQty))
	fillCost := fillPrice.Mul(decimal.NewFromInt(fillQty))
	newQty := oldQty + fillQty
	if newQty == 0 {
		return decimal.Zero
	}
	return oldCost.Add(fillCost).Div(decimal.NewFromInt(newQty))
}

// realizedPnLOnSell computes the realized P&L banked by a SELL fill:
// (fill_price - avg_price) * fill_qty - fees. avg_price is left unchanged
// by a SELL.
func realizedPnLOnSell(fillPrice, avgPrice decimal.Decimal, fillQty int64, fees decimal.Decimal) decimal.Decimal {
	gross := fillPrice.Sub(avgPrice).Mul(decimal.NewFromInt(fillQty))
	return gross.Sub(fees)
}

// cashDeltaForFill computes the signed cash-balance move a fill causes: a
// BUY debits price*quantity plus fees, a SELL credits price*quantity net of
// fees.
func cashDeltaForFill(fill contracts.Fill) decimal.Decimal {
	notional := fill.Price.Mul(decimal.NewFromInt(fill.Quantity))
	if fill.Side == contracts.SideSell {
		return notional.Sub(fill.Fees)
	}
	return notional.Add(fill.Fees).Neg()
}

// advanceTrailingStop applies the monotonic trailing-stop update: the
// high-water mark only rises, and the trailing-stop price is clamped so it
// can never decrease even if last_price dips.
func advanceTrailingStop(highest, trailing, lastPrice, distancePct decimal.Decimal) (newHighest, newTrailing decimal.Decimal) {
	newHighest = highest
	if lastPrice.GreaterThan(highest) {
		newHighest = lastPrice
	}
	candidate := newHighest.Mul(decimal.NewFromInt(1).Sub(distancePct.Div(decimal.NewFromInt(100))))
	newTrailing = trailing
	if candidate.GreaterThan(trailing) {
		newTrailing = candidate
	}
	return newHighest, newTrailing
}

// initialStopPrices derives the stop-loss and take-profit prices from an
// average entry price, relative to configured percentages.
func initialStopPrices(avgPrice, stopLossPct, takeProfitPct decimal.Decimal) (stopLoss, takeProfit decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	stopLoss = avgPrice.Mul(decimal.NewFromInt(1).Sub(stopLossPct.Div(hundred)))
	takeProfit = avgPrice.Mul(decimal.NewFromInt(1).Add(takeProfitPct.Div(hundred)))
	return stopLoss, takeProfit
}
