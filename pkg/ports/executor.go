package ports

import (
	"context"

	"github.com/aretw0/marketgate/pkg/domain"
)

// TradeExecutor fans a trade command out to every connected execution
// peer and reports the per-peer outcomes.
type TradeExecutor interface {
	// ExecuteTrade sends an action to the execution pool. It fails with
	// domain.ErrNoExecutionPeers before sending anything when the pool is
	// empty; otherwise it returns one DispatchResult per peer, and a send
	// failure removes that peer without failing the call.
	ExecuteTrade(ctx context.Context, action domain.Action, symbol string, amount float64) ([]domain.DispatchResult, error)
}
