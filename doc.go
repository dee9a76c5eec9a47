/*
Package marketgate is a WebSocket protocol gateway that sits between market
data producers, trade executors and AI trading agents.

It bridges two wire dialects: a tool port speaking JSON-RPC 2.0 to agent
peers, and an execution port speaking type-discriminated JSON messages to
the execution pool (exchanges, simulators, dashboards). Market data flowing
in on one side is fanned out to the other, and trade commands decided by
agents are dispatched back to every executor.

# Concept

The gateway owns no trading logic. It registers a tool set (buy, sell,
hold), relays market updates, and correlates requests with replies. All
decision making lives behind the tool port: an agent receives market_data
notifications, picks a tool, and the gateway turns that call into a
trade_command for the execution pool. This keeps the core hexagonal. Ports
(snapshot store, trade executor, decider) are small interfaces with
in-memory, Redis and OpenAI adapters.

# Key Features

  - Dual-dialect routing: JSON-RPC 2.0 on one port, typed messages on the other.
  - Fan-out with per-peer outcomes: a dead executor is pruned, the rest still trade.
  - Request correlation: every in-flight call resolves exactly once, even across disconnects.
  - Portfolio snapshots: the latest execution-pool state, in memory or Redis.
  - MCP surface: the same tool registry served over stdio or SSE for desktop agents.

# Usage

Assemble a gateway and mount its two handlers:

	package main

	import (
		"log"
		"net/http"

		"github.com/aretw0/marketgate"
	)

	func main() {
		gw := marketgate.New()

		go func() {
			log.Fatal(http.ListenAndServe(":8001", gw.ToolHandler()))
		}()
		log.Fatal(http.ListenAndServe(":8002", gw.ExecutionHandler()))
	}

Agent peers connect to ws://localhost:8001/ws and drive the JSON-RPC
handshake (initialize, notifications/initialized, tools/list). Execution
peers connect to ws://localhost:8002/ws and exchange typed frames
(market_data, trade_command, portfolio_update, ping).
*/
package marketgate
