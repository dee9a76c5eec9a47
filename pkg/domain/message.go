package domain

import "time"

// Discriminators for the execution-port envelope.
const (
	MsgConnectionEstablished = "connection_established"
	MsgMarketData            = "market_data"
	MsgPortfolioUpdate       = "portfolio_update"
	MsgTradeConfirmation     = "trade_confirmation"
	MsgPing                  = "ping"
	MsgPong                  = "pong"
	MsgTradeCommand          = "trade_command"
	MsgError                 = "error"
)

// MaxMessageSize is the byte ceiling for a single execution-port frame.
// Larger frames get an error reply and are otherwise ignored.
const MaxMessageSize = 1024 * 1024

// Message is the type-discriminated envelope spoken on the execution port.
// Data stays opaque until the handler for Type decodes it.
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"`
}

// Now returns the wire-clock reading: Unix seconds with sub-second
// precision, matching the float timestamps execution peers emit.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Portfolio is the balance snapshot carried by portfolio_update payloads.
type Portfolio struct {
	Balances  map[string]float64 `json:"balances" mapstructure:"balances"`
	Value     float64            `json:"value,omitempty" mapstructure:"value"`
	UpdatedAt float64            `json:"updatedAt,omitempty" mapstructure:"updatedAt"`
}

// TradeConfirmation reports an execution peer's settlement of a relayed
// command. The gateway logs these; nothing downstream depends on them.
type TradeConfirmation struct {
	OrderID string  `json:"orderId,omitempty" mapstructure:"orderId"`
	Action  string  `json:"action,omitempty" mapstructure:"action"`
	Symbol  string  `json:"symbol,omitempty" mapstructure:"symbol"`
	Amount  float64 `json:"amount,omitempty" mapstructure:"amount"`
	Status  string  `json:"status,omitempty" mapstructure:"status"`
}
