package ports

import (
	"context"

	"github.com/aretw0/marketgate/pkg/domain"
)

// Decider chooses a trading action for one market event. Implementations
// range from threshold rules to LLM-backed policies; a hold decision with
// a reason is the safe default when nothing stands out.
type Decider interface {
	Decide(ctx context.Context, market map[string]any) (domain.Decision, error)
}
