package exchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// wsTickerFeed is a reconnecting public trade-stream websocket feed used by
// venue adapters to keep a hot last-price without polling REST on every
// tick. LastPrice reports the last observed price only while it is at most
// 10s old, whether or not the connection is still up; the adapters'
// GetTicker uses that price when it is available and polls REST otherwise.
type wsTickerFeed struct {
	url string

	mu       sync.RWMutex
	lastLast decimal.Decimal
	lastSeen time.Time

	conn   *websocket.Conn
	cancel context.CancelFunc
}

func newWSTickerFeed(url string) *wsTickerFeed {
	return &wsTickerFeed{url: url}
}

func (f *wsTickerFeed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.reconnectLoop(ctx)
}

func (f *wsTickerFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *wsTickerFeed) reconnectLoop(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connectAndRead(ctx); err != nil {
			log.Warn().Err(err).Str("url", f.url).Msg("ws ticker feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *wsTickerFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(msg)
	}
}

type tradeMessage struct {
	Price string `json:"price"`
}

func (f *wsTickerFeed) handleMessage(msg []byte) {
	var tm tradeMessage
	if err := json.Unmarshal(msg, &tm); err != nil || tm.Price == "" {
		return
	}
	price, err := decimal.NewFromString(tm.Price)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.lastLast = price
	f.lastSeen = time.Now()
	f.mu.Unlock()
}

// LastPrice returns the most recently observed trade price and whether the
// feed has produced any observation recent enough to trust (within 10s).
func (f *wsTickerFeed) LastPrice() (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastLast.IsZero() || time.Since(f.lastSeen) > 10*time.Second {
		return decimal.Zero, false
	}
	return f.lastLast, true
}
