package domain

// Action is a trade direction relayed to execution peers.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether the action is one the execution pool understands.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// TradeCommand is the domain payload fanned out to every execution peer.
// The gateway forwards it verbatim and never interprets the fields.
type TradeCommand struct {
	Action    Action  `json:"action" mapstructure:"action"`
	Symbol    string  `json:"symbol" mapstructure:"symbol"`
	Amount    float64 `json:"amount" mapstructure:"amount"`
	Timestamp float64 `json:"timestamp" mapstructure:"timestamp"`
}

// Dispatch outcome per execution peer.
const (
	DispatchSent   = "sent"
	DispatchFailed = "failed"
)

// DispatchResult records the send outcome for one execution peer during a
// trade fan-out. A failed entry names the reason; the overall call still
// succeeds as long as the peer set was non-empty.
type DispatchResult struct {
	Peer   string `json:"peer"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Decision is the trading action a decider chooses for one market event.
type Decision struct {
	Action Action  `json:"action" mapstructure:"action"`
	Symbol string  `json:"symbol,omitempty" mapstructure:"symbol"`
	Amount float64 `json:"amount,omitempty" mapstructure:"amount"`
	Reason string  `json:"reason,omitempty" mapstructure:"reason"`
}
