// Package models provides domain models for the trading application.
package models

import (
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the closing side for a position opened with this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Order statuses as reported by the broker order book.
const (
	OrderStatusComplete  = "COMPLETE"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusOpen      = "OPEN"
)

// Order represents a trading order.
type Order struct {
	ID           string
	Symbol       string
	Exchange     Exchange
	Side         OrderSide
	Type         OrderType
	Product      ProductType
	Quantity     int
	Price        float64
	Validity     string // DAY, IOC
	Tag          string
	Status       string
	FilledQty    int
	AveragePrice float64
	PlacedAt     time.Time
}

// Tick represents real-time market data for one instrument.
type Tick struct {
	Token     uint32
	LTP       float64
	OI        int64
	Volume    int64
	BidPrice  float64
	AskPrice  float64
	Timestamp time.Time
}

// Quote represents a market quote fetched over REST.
type Quote struct {
	Symbol   string
	LTP      float64
	OI       int64
	Volume   int64
	BidPrice float64
	AskPrice float64
}

// Instrument represents a tradeable instrument from the instrument master.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	Segment   string
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	Strike    float64
	InstrType string // CE, PE, FUT, EQ
}

// EventSeverity classifies entries in the session event log.
type EventSeverity string

const (
	EventInfo  EventSeverity = "info"
	EventAlert EventSeverity = "alert"
	EventTrade EventSeverity = "trade"
)

// Event is one human-readable entry in the session event log.
type Event struct {
	Sender   string
	Text     string
	Severity EventSeverity
	Time     time.Time
}
