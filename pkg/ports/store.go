package ports

import (
	"context"

	"github.com/aretw0/marketgate/pkg/domain"
)

// SnapshotKeyExecution is the well-known key the gateway stores the
// execution pool's latest portfolio under.
const SnapshotKeyExecution = "execution"

// SnapshotStore persists portfolio snapshots reported by execution peers.
// Keys are caller-chosen; the gateway uses one key per execution pool.
type SnapshotStore interface {
	// Save persists the snapshot under key, replacing any previous value.
	Save(ctx context.Context, key string, p *domain.Portfolio) error

	// Load retrieves the snapshot stored under key.
	// Returns domain.ErrSnapshotNotFound if nothing is stored.
	Load(ctx context.Context, key string) (*domain.Portfolio, error)

	// Delete removes the snapshot stored under key.
	Delete(ctx context.Context, key string) error
}
