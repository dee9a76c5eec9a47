// Command mockexchange is a paper-trading executor for local development.
// It connects to the gateway's execution port, streams a random-walk
// price feed and fills every trade command against a simulated book.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/marketgate/internal/logging"
	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/gorilla/websocket"
)

func main() {
	url := flag.String("url", "ws://localhost:8002/ws", "Execution port WebSocket URL")
	symbol := flag.String("symbol", "BTCUSD", "Symbol to stream")
	price := flag.Float64("price", 50000, "Starting price")
	cash := flag.Float64("cash", 100000, "Starting cash balance (USD)")
	interval := flag.Duration("interval", 2*time.Second, "Tick interval")
	flag.Parse()

	logger := logging.New(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ex := &exchange{
		log:    logger,
		symbol: *symbol,
		price:  *price,
		book:   newBook(*cash),
	}
	if err := ex.run(ctx, *url, *interval); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("mockexchange: %v\n", err)
		os.Exit(1)
	}
}

type exchange struct {
	log    *slog.Logger
	symbol string
	price  float64
	book   *book

	mu   sync.Mutex
	conn *websocket.Conn
}

type frame struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"`
}

func (e *exchange) run(ctx context.Context, url string, interval time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	e.conn = conn
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	readErrors := make(chan error, 1)
	go func() { readErrors <- e.read() }()

	e.log.Info("mockexchange: connected", "url", url, "symbol", e.symbol)
	e.sendPortfolio()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrors:
			return fmt.Errorf("connection lost: %w", err)
		case <-ticker.C:
			e.tick()
		}
	}
}

// read consumes everything the gateway sends: the greeting, pongs and
// trade commands. Fills happen here.
func (e *exchange) read() error {
	for {
		var f frame
		if err := e.conn.ReadJSON(&f); err != nil {
			return err
		}

		switch f.Type {
		case domain.MsgConnectionEstablished:
			e.log.Info("mockexchange: greeting received")
		case domain.MsgTradeCommand:
			e.fill(f.Data)
		case domain.MsgPong:
		default:
			e.log.Debug("mockexchange: ignoring frame", "type", f.Type)
		}
	}
}

// tick advances the random walk and publishes the new price.
func (e *exchange) tick() {
	drift := (rand.Float64() - 0.5) * 0.04
	e.price *= 1 + drift

	e.send(frame{
		Type: domain.MsgMarketData,
		Data: map[string]any{
			"symbol": e.symbol,
			"price":  e.price,
		},
		Timestamp: domain.Now(),
	})
	e.log.Info("mockexchange: tick", "symbol", e.symbol, "price", fmt.Sprintf("%.2f", e.price))
}

// fill executes a trade command against the paper book and reports the
// settlement plus the refreshed portfolio.
func (e *exchange) fill(data map[string]any) {
	action, _ := data["action"].(string)
	symbol, _ := data["symbol"].(string)
	amount, _ := data["amount"].(float64)

	status := e.book.apply(action, symbol, amount, e.price)
	e.log.Info("mockexchange: trade filled",
		"action", action, "symbol", symbol, "amount", amount, "status", status)

	e.send(frame{
		Type: domain.MsgTradeConfirmation,
		Data: map[string]any{
			"orderId": fmt.Sprintf("paper-%d", time.Now().UnixNano()),
			"action":  action,
			"symbol":  symbol,
			"amount":  amount,
			"status":  status,
			"price":   e.price,
		},
	})
	e.sendPortfolio()
}

func (e *exchange) sendPortfolio() {
	balances, value := e.book.snapshot(e.price)
	e.send(frame{
		Type: domain.MsgPortfolioUpdate,
		Data: map[string]any{
			"balances": balances,
			"value":    value,
		},
		Timestamp: domain.Now(),
	})
}

func (e *exchange) send(f frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.WriteJSON(f); err != nil {
		e.log.Warn("mockexchange: send failed", "type", f.Type, "err", err)
	}
}

// book is the paper position ledger.
type book struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]float64
}

func newBook(cash float64) *book {
	return &book{cash: cash, positions: make(map[string]float64)}
}

func (b *book) apply(action, symbol string, amount, price float64) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch action {
	case "buy":
		cost := amount * price
		if cost > b.cash {
			return "rejected"
		}
		b.cash -= cost
		b.positions[symbol] += amount
	case "sell":
		if b.positions[symbol] < amount {
			return "rejected"
		}
		b.cash += amount * price
		b.positions[symbol] -= amount
	case "hold":
		// Nothing to settle.
	default:
		return "rejected"
	}
	return "filled"
}

func (b *book) snapshot(price float64) (map[string]float64, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	balances := map[string]float64{"USD": b.cash}
	value := b.cash
	for symbol, qty := range b.positions {
		balances[symbol] = qty
		value += qty * price
	}
	return balances, value
}
