/*
Package domain contains the core types shared by every MarketGate component.

It defines the wire frames spoken on the tool port (JSON-RPC requests,
responses and notifications), the type-discriminated envelope spoken on the
execution port, and the trading payloads relayed between them. This package
is kept pure and free of external dependencies like I/O or transport,
following Hexagonal Architecture principles.

# Key Entities

  - Request / Response: the JSON-RPC frames exchanged on the tool port.
  - Message: the discriminated envelope exchanged on the execution port.
  - Tool: a named, schema-described capability exposed for discovery.
  - TradeCommand: the payload fanned out to every execution peer.
*/
package domain
