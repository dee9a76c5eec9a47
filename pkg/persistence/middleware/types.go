// Package middleware provides composable wrappers for snapshot stores.
package middleware

import "github.com/aretw0/marketgate/pkg/ports"

// Middleware allows wrapping a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore
