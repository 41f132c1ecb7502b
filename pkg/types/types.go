// Package types defines the shared data structures used across all packages
// of the worker — market metadata, order book levels, balances, and the
// order shapes that cross the gateway boundary. It has no dependency on any
// other internal package, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the wire order types understood by the gateway.
type OrderType string

const (
	OrderTypeLimit OrderType = "LIMIT"
)

// OrderStatus filters getOrders by lifecycle state.
type OrderStatus string

const (
	OrderStatusOpen   OrderStatus = "OPEN"
	OrderStatusFilled OrderStatus = "FILLED"
)

// NativeTokenID is the distinguished native-chain token queried alongside a
// market's base/quote tokens when fetching balances.
const NativeTokenID = "native"

// Token describes one side of a market.
type Token struct {
	ID   string
	Name string
}

// Market is the immutable descriptor fetched once at worker initialization.
type Market struct {
	ID                    string
	Name                  string
	Base                  Token
	Quote                 Token
	MinimumPriceIncrement decimal.Decimal
	MinimumOrderSize      decimal.Decimal
}

// PriceLevel is one level of an order book side.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderBookSnapshot is the normalized, point-in-time view of a market's book.
// Bids are sorted descending by price, asks ascending. Never mutated after
// construction.
type OrderBookSnapshot struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// BestBid returns the top bid price, or zero if the book has no bids.
func (s OrderBookSnapshot) BestBid() decimal.Decimal {
	if len(s.Bids) == 0 {
		return decimal.Zero
	}
	return s.Bids[0].Price
}

// BestAsk returns the top ask price, or a very large sentinel if the book
// has no asks (so clamps against it are no-ops, matching "+∞" in the spec).
func (s OrderBookSnapshot) BestAsk(infinity decimal.Decimal) decimal.Decimal {
	if len(s.Asks) == 0 {
		return infinity
	}
	return s.Asks[0].Price
}

// RawPriceLevel is the wire shape of a single book level before parsing —
// venues commonly serialize price/amount as strings to preserve precision.
type RawPriceLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// RawOrderBook is the gateway's wire response for getOrderBook: an unordered
// collection of levels per side.
type RawOrderBook struct {
	MarketID string          `json:"marketId"`
	Bids     []RawPriceLevel `json:"bids"`
	Asks     []RawPriceLevel `json:"asks"`
}

// Ticker is the latest traded price reported by the venue.
type Ticker struct {
	Price decimal.Decimal
}

// TokenBalance is one token's free/locked/unsettled split.
type TokenBalance struct {
	Free          decimal.Decimal
	LockedInOrders decimal.Decimal
	Unsettled     decimal.Decimal
}

// Balances is the full balance snapshot returned by the gateway.
type Balances struct {
	Total  TokenBalance
	Tokens map[string]TokenBalance
}

// ProposedOrder is a candidate limit order produced by the proposal builder,
// not yet placed on the venue. ClientID is unique within one proposal batch
// only, not across ticks.
type ProposedOrder struct {
	ClientID string
	MarketID string
	Side     Side
	Type     OrderType
	Price    decimal.Decimal
	Amount   decimal.Decimal
}

// VenueOrder is an order as reported back by the gateway: it carries a
// venue-assigned ID plus the echoed ClientID. ClientID == "0" denotes an
// order this worker never placed (manually created, foreign).
type VenueOrder struct {
	ID       string
	ClientID string
	MarketID string
	Side     Side
	Price    decimal.Decimal
	Amount   decimal.Decimal
	Status   OrderStatus
	Filled   time.Time
}

// ForeignClientID is the reserved ClientID value denoting a manually placed
// order that the worker must never track or cancel.
const ForeignClientID = "0"

// WireOrder is the request shape postOrders expects for a single order.
type WireOrder struct {
	ClientID    string `json:"clientId"`
	MarketID    string `json:"marketId"`
	OwnerAddress string `json:"ownerAddress"`
	Side        Side   `json:"side"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
	Type        OrderType `json:"type"`
}

// PlacedOrder is the gateway's per-order acknowledgement from postOrders.
type PlacedOrder struct {
	ID       string
	ClientID string
}

// CancelAck is the gateway's per-id acknowledgement from deleteOrders /
// deleteAllOrders.
type CancelAck struct {
	ID      string
	Success bool
}
