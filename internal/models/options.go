package models

import "time"

// OptionKind distinguishes calls from puts using the NSE suffix convention.
type OptionKind string

const (
	Call OptionKind = "CE"
	Put  OptionKind = "PE"
)

// StrikeDirection returns +1 for calls and -1 for puts, the direction in
// which a strike moves further out of the money.
func (k OptionKind) StrikeDirection() float64 {
	if k == Call {
		return 1
	}
	return -1
}

// Greeks is the sensitivity bundle solved from a market price.
// IV is expressed as a percentage, vega per 1-point IV change and
// theta per calendar day.
type Greeks struct {
	IV        float64
	Delta     float64
	Gamma     float64
	Theta     float64
	Vega      float64
	FairPrice float64
}

// ContractQuote is one option contract in the current chain snapshot.
// The whole chain is rebuilt on each rescan; individual quotes are
// mutated in place by matching price ticks between rescans.
type ContractQuote struct {
	Symbol     string
	Token      uint32
	Strike     float64
	Kind       OptionKind
	Expiry     string // DDMMMYY, e.g. 28NOV24
	LTP        float64
	OI         int64
	Volume     int64
	Bid        float64
	Ask        float64
	Greeks     Greeks
	IVMismatch float64
	Overpriced bool
}

// LegSide is the direction of an open position leg.
type LegSide string

const (
	LegLong  LegSide = "long"
	LegShort LegSide = "short"
)

// Multiplier returns the sign applied to (ltp - entry) when computing P/L.
func (s LegSide) Multiplier() float64 {
	if s == LegLong {
		return 1
	}
	return -1
}

// OrderSide maps a leg side to the order side that opens it.
func (s LegSide) OrderSide() OrderSide {
	if s == LegLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Leg is one open position. Created only on a confirmed fill, mutated on
// every matching price tick, removed when a close order is submitted.
type Leg struct {
	Symbol   string
	Token    uint32
	Side     LegSide
	Quantity int
	Entry    float64
	LTP      float64
	PnL      float64
	OrderID  string
	Tag      string
	OpenedAt time.Time
}
