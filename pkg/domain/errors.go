package domain

import "errors"

// ErrNoExecutionPeers is returned when a trade is dispatched while the
// execution registry is empty. Nothing is sent in that case.
var ErrNoExecutionPeers = errors.New("no execution peers connected")

// ErrRequestTimeout is returned when a pending request sees no reply
// within its deadline.
var ErrRequestTimeout = errors.New("request timed out")

// ErrConnectionClosed is returned for every request still pending when the
// underlying transport drops.
var ErrConnectionClosed = errors.New("connection closed")

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrNotConnected is returned when a call is issued before the client has
// finished its handshake.
var ErrNotConnected = errors.New("not connected")

// ErrSnapshotNotFound is returned when a snapshot key has no stored value.
var ErrSnapshotNotFound = errors.New("snapshot not found")
