// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType names a kind of market notification.
type EventType string

const (
	// Curve lifecycle
	TokenLaunched      EventType = "curve.launched"
	CurveCompleted     EventType = "curve.completed"
	MigrationCompleted EventType = "curve.migrated"

	// Trades
	TokenPurchased EventType = "trade.buy"
	TokenSold      EventType = "trade.sell"

	// Configuration
	ConfigurationInitialized EventType = "config.initialized"
	ConfigurationUpdated     EventType = "config.updated"

	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now().UTC()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TokenLaunchedEvent is emitted when a new curve opens for trading.
type TokenLaunchedEvent struct {
	BaseEvent
	Mint                solana.PublicKey `json:"mint"`
	Creator             solana.PublicKey `json:"creator"`
	Name                string           `json:"name"`
	Symbol              string           `json:"symbol"`
	URI                 string           `json:"uri"`
	TotalSupply         uint64           `json:"total_supply"`
	VirtualSolReserve   uint64           `json:"virtual_sol_reserve"`
	VirtualTokenReserve uint64           `json:"virtual_token_reserve"`
}

// TradeEvent carries the outcome of a buy or sell. SolAmount is what the
// trader paid (buy) or received (sell).
type TradeEvent struct {
	BaseEvent
	Mint            solana.PublicKey `json:"mint"`
	Trader          solana.PublicKey `json:"trader"`
	SolAmount       uint64           `json:"sol_amount"`
	TokenAmount     uint64           `json:"token_amount"`
	FeeAmount       uint64           `json:"fee_amount"`
	Price           uint64           `json:"price"`
	NewSolReserve   uint64           `json:"new_sol_reserve"`
	NewTokenReserve uint64           `json:"new_token_reserve"`
	PriceImpactBps  uint64           `json:"price_impact_bps"`
}

// CurveCompletedEvent is emitted once, by the trade that reaches the limit.
type CurveCompletedEvent struct {
	BaseEvent
	Mint              solana.PublicKey `json:"mint"`
	FinalSolReserve   uint64           `json:"final_sol_reserve"`
	FinalTokenReserve uint64           `json:"final_token_reserve"`
}

// MigrationCompletedEvent reports liquidity handed to an external pool.
type MigrationCompletedEvent struct {
	BaseEvent
	Mint         solana.PublicKey `json:"mint"`
	SolAmount    uint64           `json:"sol_amount"`
	TokenAmount  uint64           `json:"token_amount"`
	MigrationFee uint64           `json:"migration_fee"`
	Pool         solana.PublicKey `json:"pool"`
}

// ConfigSnapshot is the subset of global configuration carried in events.
type ConfigSnapshot struct {
	Authority              solana.PublicKey `json:"authority"`
	FeeRecipient           solana.PublicKey `json:"fee_recipient"`
	CurveLimit             uint64           `json:"curve_limit"`
	InitialVirtualToken    uint64           `json:"initial_virtual_token_reserve"`
	InitialVirtualSol      uint64           `json:"initial_virtual_sol_reserve"`
	InitialRealToken       uint64           `json:"initial_real_token_reserve"`
	TotalTokenSupply       uint64           `json:"total_token_supply"`
	BuyFeePercentage       uint64           `json:"buy_fee_percentage"`
	SellFeePercentage      uint64           `json:"sell_fee_percentage"`
	MigrationFeePercentage uint64           `json:"migration_fee_percentage"`
	Paused                 bool             `json:"paused"`
}

// ConfigurationInitializedEvent is emitted by the first configure call.
type ConfigurationInitializedEvent struct {
	BaseEvent
	Admin  solana.PublicKey `json:"admin"`
	Config ConfigSnapshot   `json:"config"`
}

// ConfigurationUpdatedEvent carries the configuration before and after.
type ConfigurationUpdatedEvent struct {
	BaseEvent
	Admin solana.PublicKey `json:"admin"`
	Old   ConfigSnapshot   `json:"old"`
	New   ConfigSnapshot   `json:"new"`
}
