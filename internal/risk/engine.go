package risk

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Engine is the pure-math risk calculator behind the Risk Engine (C10):
// VaR/CVaR, Monte Carlo simulation, limit checks, and stress tests. It holds
// no state and touches no store — every call takes its inputs already
// assembled (portfolio weights, return series, limits) by the caller, which
// for this build is Breaker.varRollup.
type Engine struct{}

// NewEngine constructs an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// VaR computes historical Value-at-Risk over a daily return series.
// returns are simple daily returns (positive = gain, negative = loss);
// confidence is the VaR confidence level (e.g. 0.95, 0.99). The result
// expresses loss as a positive number.
func (e *Engine) VaR(returns []float64, confidence float64) VaRResult {
	return CalculateVaR(returns, confidence)
}

// CVaR computes Conditional VaR (Expected Shortfall) over the same series.
func (e *Engine) CVaR(returns []float64, confidence float64) VaRResult {
	return CalculateVaR(returns, confidence) // CVaR falls out of the same calculation
}

// ParametricVaR computes VaR under a normal-distribution assumption from a
// return series' mean and standard deviation directly, without resampling.
func (e *Engine) ParametricVaR(mean, stdDev, confidence float64) VaRResult {
	return CalculateParametricVaR(mean, stdDev, confidence)
}

var (
	ErrInsufficientData = errors.New("insufficient data for simulation")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// MonteCarlo resamples a portfolio's historical return series to project a
// distribution of outcomes over config.HoldingPeriod. input.Returns is the
// portfolio-level return series the caller has already weight-combined
// (see CalculatePortfolioReturns).
func (e *Engine) MonteCarlo(ctx context.Context, input PortfolioReturns, config MonteCarloConfig) (*MonteCarloResult, error) {
	if len(input.Returns) < config.MinSamples {
		return nil, fmt.Errorf("%w: got %d, need %d",
			ErrInsufficientData, len(input.Returns), config.MinSamples)
	}

	simulator := NewMonteCarloSimulator(config)
	result, err := simulator.SimulateReturns(ctx, input.Returns)
	if err != nil {
		return nil, err
	}

	result.InputSampleCount = len(input.Returns)
	return result, nil
}

// CheckLimits evaluates a portfolio return series' historical VaR95/CVaR95
// against limits and reports every breach. Pure: it neither halts trading
// nor persists anything — Breaker.Check decides what to do with the result.
func (e *Engine) CheckLimits(input RiskCheckInput, limits RiskLimits) *RiskCheckResult {
	result := &RiskCheckResult{
		Passed:       true,
		MaxVaRLimit:  limits.MaxVaR95,
		MaxCVaRLimit: limits.MaxCVaR95,
		Violations:   make([]string, 0),
		CheckedAt:    time.Now(),
	}

	varResult := CalculateVaR(input.PortfolioReturns, 0.95)
	result.VaR95 = varResult.VaR
	result.CVaR95 = varResult.CVaR

	if varResult.VaR > limits.MaxVaR95 {
		result.Passed = false
		result.Violations = append(result.Violations,
			fmt.Sprintf("VaR95 %.4f exceeds limit %.4f", varResult.VaR, limits.MaxVaR95))
	}

	if varResult.CVaR > limits.MaxCVaR95 {
		result.Passed = false
		result.Violations = append(result.Violations,
			fmt.Sprintf("CVaR95 %.4f exceeds limit %.4f", varResult.CVaR, limits.MaxCVaR95))
	}

	return result
}

// StressTest applies each scenario's per-ticker shocks to a set of
// portfolio weights (map[ticker]weight) and returns the resulting portfolio
// loss per scenario name. A scenario's "*" shock applies to any ticker it
// doesn't name explicitly.
func (e *Engine) StressTest(weights map[string]float64, scenarios []Scenario) map[string]float64 {
	results := make(map[string]float64)

	for _, scenario := range scenarios {
		var portfolioLoss float64

		for ticker, weight := range weights {
			shock, exists := scenario.Shocks[ticker]
			if !exists {
				shock, exists = scenario.Shocks["*"]
				if !exists {
					continue
				}
			}
			portfolioLoss += weight * shock
		}

		results[scenario.Name] = portfolioLoss
	}

	return results
}

// CalculatePortfolioReturns weight-combines per-ticker return series into a
// single portfolio return series, truncated to the shortest series among
// weights (map[ticker]weight) and assetReturns (map[ticker][]return).
func CalculatePortfolioReturns(weights map[string]float64, assetReturns map[string][]float64) []float64 {
	minLen := -1
	for _, returns := range assetReturns {
		if minLen == -1 || len(returns) < minLen {
			minLen = len(returns)
		}
	}

	if minLen <= 0 {
		return nil
	}

	portfolioReturns := make([]float64, minLen)
	for i := 0; i < minLen; i++ {
		var dayReturn float64
		for ticker, weight := range weights {
			if returns, ok := assetReturns[ticker]; ok && i < len(returns) {
				dayReturn += weight * returns[i]
			}
		}
		portfolioReturns[i] = dayReturn
	}

	return portfolioReturns
}

// ValidateConfig checks a MonteCarloConfig for the invariants MonteCarlo
// assumes before it ever samples: positive simulation count, positive
// holding period, positive minimum sample floor, and at least one
// confidence level strictly between 0 and 1.
func ValidateConfig(config MonteCarloConfig) error {
	if config.NumSimulations <= 0 {
		return fmt.Errorf("%w: NumSimulations must be > 0", ErrInvalidConfig)
	}
	if config.HoldingPeriod <= 0 {
		return fmt.Errorf("%w: HoldingPeriod must be > 0", ErrInvalidConfig)
	}
	if config.MinSamples <= 0 {
		return fmt.Errorf("%w: MinSamples must be > 0", ErrInvalidConfig)
	}
	if len(config.ConfidenceLevels) == 0 {
		return fmt.Errorf("%w: ConfidenceLevels cannot be empty", ErrInvalidConfig)
	}
	for _, cl := range config.ConfidenceLevels {
		if cl <= 0 || cl >= 1 {
			return fmt.Errorf("%w: ConfidenceLevel must be between 0 and 1", ErrInvalidConfig)
		}
	}
	return nil
}
