// Package pricing implements the Black-Scholes option pricing model:
// fair value, the Greeks, and a Newton-Raphson implied-volatility solver.
// All functions are pure; callers supply spot, strike, time to expiry in
// years, the risk-free rate and volatility as decimals.
package pricing

import (
	"math"

	"shortvol-trader/internal/models"
)

// Solver constants. The solver returns its last estimate even when the
// loop exhausts without converging; callers must tolerate that.
const (
	ivInitialGuess = 0.20
	ivMaxIter      = 200
	ivTolerance    = 1e-5
	ivMinVega      = 1e-10
	ivFloor        = 0.001
	ivCeil         = 5.0
)

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// D1 is the standard Black-Scholes d1 term.
func D1(s, k, t, r, sigma float64) float64 {
	return (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

// D2 is d1 minus sigma*sqrt(t).
func D2(s, k, t, r, sigma float64) float64 {
	return D1(s, k, t, r, sigma) - sigma*math.Sqrt(t)
}

// Price returns the Black-Scholes fair value of a European option.
func Price(s, k, t, r, sigma float64, kind models.OptionKind) float64 {
	d1 := D1(s, k, t, r, sigma)
	d2 := d1 - sigma*math.Sqrt(t)
	if kind == models.Call {
		return s*normCDF(d1) - k*math.Exp(-r*t)*normCDF(d2)
	}
	return k*math.Exp(-r*t)*normCDF(-d2) - s*normCDF(-d1)
}

// Delta is the option value sensitivity to a 1-point move in the underlying.
func Delta(s, k, t, r, sigma float64, kind models.OptionKind) float64 {
	d1 := D1(s, k, t, r, sigma)
	if kind == models.Call {
		return normCDF(d1)
	}
	return normCDF(d1) - 1
}

// Gamma is the rate of change of delta; identical for calls and puts.
func Gamma(s, k, t, r, sigma float64) float64 {
	d1 := D1(s, k, t, r, sigma)
	return normPDF(d1) / (s * sigma * math.Sqrt(t))
}

// Theta is time decay per calendar day (annualized term divided by 365).
func Theta(s, k, t, r, sigma float64, kind models.OptionKind) float64 {
	d1 := D1(s, k, t, r, sigma)
	d2 := d1 - sigma*math.Sqrt(t)
	t1 := -(s * normPDF(d1) * sigma) / (2 * math.Sqrt(t))
	if kind == models.Call {
		return (t1 - r*k*math.Exp(-r*t)*normCDF(d2)) / 365
	}
	return (t1 + r*k*math.Exp(-r*t)*normCDF(-d2)) / 365
}

// Vega is the sensitivity per 1-point change in volatility expressed as a
// percentage, hence the 1/100 scaling.
func Vega(s, k, t, r, sigma float64) float64 {
	d1 := D1(s, k, t, r, sigma)
	return s * normPDF(d1) * math.Sqrt(t) / 100
}

// ImpliedVolatility solves for the volatility that reconciles the model
// fair value with an observed market price, via Newton-Raphson from a 20%
// starting guess. Near-zero vega (deep OTM, expiring contracts) aborts the
// solve and the current estimate is returned as best effort. The estimate
// is clamped to [0.001, 5.0] on every step.
func ImpliedVolatility(marketPrice, s, k, t, r float64, kind models.OptionKind) float64 {
	if marketPrice <= 0 {
		return 0
	}
	sigma := ivInitialGuess
	for i := 0; i < ivMaxIter; i++ {
		price := Price(s, k, t, r, sigma, kind)
		vega := Vega(s, k, t, r, sigma) * 100 // unscaled
		if math.Abs(vega) < ivMinVega {
			break
		}
		sigma -= (price - marketPrice) / vega
		sigma = math.Max(ivFloor, math.Min(sigma, ivCeil))
		if math.Abs(Price(s, k, t, r, sigma, kind)-marketPrice) < ivTolerance {
			break
		}
	}
	return sigma
}

// FullGreeks solves implied volatility from a live market price and
// evaluates fair value and all Greeks at that volatility. A zero or
// negative market price yields an all-zero bundle rather than undefined
// Greeks.
func FullGreeks(s, k, t, r, marketPrice float64, kind models.OptionKind) models.Greeks {
	iv := ImpliedVolatility(marketPrice, s, k, t, r, kind)
	if iv <= 0 {
		return models.Greeks{}
	}
	return models.Greeks{
		IV:        round(iv*100, 2),
		Delta:     round(Delta(s, k, t, r, iv, kind), 4),
		Gamma:     round(Gamma(s, k, t, r, iv), 5),
		Theta:     round(Theta(s, k, t, r, iv, kind), 2),
		Vega:      round(Vega(s, k, t, r, iv), 4),
		FairPrice: round(Price(s, k, t, r, iv, kind), 2),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
