/*
Package ports defines the driven ports (interfaces) for MarketGate.

These interfaces decouple the gateway and its companion processes from
external implementations, allowing different storage backends, execution
pools, and decision engines to be swapped in.

# Key Interfaces

  - SnapshotStore: persists the latest portfolio snapshot (memory or Redis).
  - TradeExecutor: fans a trade command out to the execution pool.
  - Decider: chooses a trading action for one market event.
*/
package ports
