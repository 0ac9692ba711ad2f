package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/config"
	"github.com/web3guy0/polybot/types"
)

// GateioAdapter implements SourceClient and MirrorClient against a
// Gate.io-style USDT-futures API. Field names differ from Bitget's; each
// payload still goes through its own explicit alias parser.
type GateioAdapter struct {
	http *signedHTTPClient
	ws   *wsTickerFeed
}

func NewGateioAdapter(cfg *config.Config, creds config.Credentials, baseURL, wsURL string) *GateioAdapter {
	return &GateioAdapter{
		http: newSignedHTTPClient(baseURL, creds.APIKey, creds.APISecret, creds.Passphrase, cfg.APIRetryCount, cfg.APITimeout),
		ws:   newWSTickerFeed(wsURL),
	}
}

func (a *GateioAdapter) Start(ctx context.Context) { a.ws.Start(ctx) }
func (a *GateioAdapter) Stop()                     { a.ws.Stop() }

type gateTicker struct {
	Last          string `json:"last"`
	High24h       string `json:"high_24h"`
	Low24h        string `json:"low_24h"`
	Volume24h     string `json:"volume_24h_base"`
	ChangePercent string `json:"change_percentage"`
}

func (a *GateioAdapter) GetTicker(ctx context.Context) (types.Ticker, error) {
	if wsPrice, ok := a.ws.LastPrice(); ok {
		return types.Ticker{Last: wsPrice, ObservedAt: time.Now()}, nil
	}

	body, err := a.http.get(ctx, "/api/v4/futures/usdt/tickers")
	if err != nil {
		return types.Ticker{}, fmt.Errorf("get_ticker: %w", err)
	}
	var list []gateTicker
	if err := json.Unmarshal(body, &list); err != nil || len(list) == 0 {
		return types.Ticker{}, fmt.Errorf("get_ticker: unparseable payload")
	}
	t := list[0]
	last, err := parseDecimalOrZero(t.Last)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("get_ticker: %w", err)
	}
	high, _ := parseDecimalOrZero(t.High24h)
	low, _ := parseDecimalOrZero(t.Low24h)
	vol, _ := parseDecimalOrZero(t.Volume24h)
	chg, _ := parseDecimalOrZero(t.ChangePercent)
	return types.Ticker{Last: last, High: high, Low: low, Volume: vol, ChangePct: chg, ObservedAt: time.Now()}, nil
}

type gatePosition struct {
	Contract     string `json:"contract"`
	Size         int64  `json:"size"`
	EntryPrice   string `json:"entry_price"`
	Leverage     string `json:"leverage"`
	LiqPrice     string `json:"liq_price"`
}

func (a *GateioAdapter) GetPositions(ctx context.Context, contract string) ([]types.Position, error) {
	body, err := a.http.get(ctx, "/api/v4/futures/usdt/positions/"+contract)
	if err != nil {
		return nil, fmt.Errorf("get_positions: %w", err)
	}
	var p gatePosition
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("get_positions: unparseable payload: %w", err)
	}
	if p.Size == 0 {
		return nil, nil
	}
	dir := types.Long
	size := decimal.NewFromInt(p.Size)
	if p.Size < 0 {
		dir = types.Short
		size = size.Neg()
	}
	entry, _ := parseDecimalOrZero(p.EntryPrice)
	lev := 0
	if l, err := decimal.NewFromString(p.Leverage); err == nil {
		lev = int(l.IntPart())
	}
	liq, _ := parseDecimalOrZero(p.LiqPrice)
	return []types.Position{{Contract: p.Contract, Direction: dir, Size: size, EntryPrice: entry, Leverage: lev, LiquidationPrice: liq}}, nil
}

type gateAccount struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

func (a *GateioAdapter) GetAccount(ctx context.Context) (types.Account, error) {
	body, err := a.http.get(ctx, "/api/v4/futures/usdt/accounts")
	if err != nil {
		return types.Account{}, fmt.Errorf("get_account: %w", err)
	}
	var p gateAccount
	if err := json.Unmarshal(body, &p); err != nil {
		return types.Account{}, fmt.Errorf("get_account: unparseable payload: %w", err)
	}
	equity, _ := parseDecimalOrZero(p.Total)
	avail, _ := parseDecimalOrZero(p.Available)
	return types.Account{TotalEquity: equity, Available: avail}, nil
}

type gateFill struct {
	ID       int64  `json:"id"`
	Contract string `json:"contract"`
	Price    string `json:"price"`
	Size     int64  `json:"size"`
	CreateTime float64 `json:"create_time"`
}

func (a *GateioAdapter) GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]types.Fill, error) {
	body, err := a.http.get(ctx, fmt.Sprintf("/api/v4/futures/usdt/my_trades?contract=%s&limit=100", contract))
	if err != nil {
		return nil, fmt.Errorf("get_recent_filled_orders: %w", err)
	}
	var list []gateFill
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("get_recent_filled_orders: unparseable payload: %w", err)
	}
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	out := make([]types.Fill, 0, len(list))
	for _, f := range list {
		at := time.Unix(int64(f.CreateTime), 0)
		if at.Before(cutoff) {
			continue
		}
		price, _ := parseDecimalOrZero(f.Price)
		size := decimal.NewFromInt(f.Size).Abs()
		out = append(out, types.Fill{
			OrderID: fmt.Sprintf("%d", f.ID), Contract: f.Contract,
			Price: price, Size: size, FilledAt: at,
		})
	}
	return out, nil
}

type gatePriceTriggeredOrder struct {
	ID       int64  `json:"id"`
	Contract string `json:"contract"`
	Trigger  struct {
		Price string `json:"price"`
	} `json:"trigger"`
	Initial struct {
		Contract string `json:"contract"`
		Size     int64  `json:"size"`
		Reduce   bool   `json:"reduce_only"`
	} `json:"initial"`
	Leverage string `json:"leverage"`
}

func (a *GateioAdapter) GetAllTriggerOrders(ctx context.Context, contract string) ([]types.TriggerOrder, error) {
	body, err := a.http.get(ctx, fmt.Sprintf("/api/v4/futures/usdt/price_orders?contract=%s&status=open", contract))
	if err != nil {
		return nil, fmt.Errorf("get_all_trigger_orders: %w", err)
	}
	var list []gatePriceTriggeredOrder
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("get_all_trigger_orders: unparseable payload: %w", err)
	}

	out := make([]types.TriggerOrder, 0, len(list))
	for _, o := range list {
		trig, err := parseDecimalOrZero(o.Trigger.Price)
		if err != nil || trig.IsZero() {
			continue
		}
		size := decimal.NewFromInt(o.Initial.Size)
		isLong := size.GreaterThan(decimal.Zero)
		side := types.OpenLong
		switch {
		case o.Initial.Reduce && isLong:
			side = types.CloseShort // reduce_only buy closes an existing short
		case o.Initial.Reduce && !isLong:
			side = types.CloseLong
		case !o.Initial.Reduce && isLong:
			side = types.OpenLong
		default:
			side = types.OpenShort
		}
		lev := 0
		if l, err := decimal.NewFromString(o.Leverage); err == nil {
			lev = int(l.IntPart())
		}
		out = append(out, types.TriggerOrder{
			OrderID: fmt.Sprintf("%d", o.ID), Contract: o.Contract, Side: side,
			TriggerPrice: trig, Size: size.Abs(), Leverage: lev, CreatedAt: time.Now(),
		})
	}
	return out, nil
}

// --- MirrorClient-only methods ---

type gateDualMode struct {
	InDualMode bool `json:"in_dual_mode"`
}

func (a *GateioAdapter) GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error) {
	body, err := a.http.get(ctx, "/api/v4/futures/usdt/dual_comp/positions/"+contract)
	if err != nil {
		return types.UnknownMode, fmt.Errorf("get_margin_mode: %w", err)
	}
	// An unparseable payload degrades to UnknownMode rather than guessing.
	var p gateDualMode
	if err := json.Unmarshal(body, &p); err != nil {
		return types.UnknownMode, fmt.Errorf("get_margin_mode: unparseable payload: %w", err)
	}
	return types.Cross, nil
}

func (a *GateioAdapter) ForceCrossMargin(ctx context.Context, contract string) (bool, error) {
	_, err := a.http.post(ctx, "/api/v4/futures/usdt/positions/"+contract+"/margin_mode", map[string]string{"mode": "cross"})
	if err != nil {
		if IsIdempotentSuccess(err) {
			return true, nil
		}
		return false, fmt.Errorf("force_cross_margin: %w", err)
	}
	return true, nil
}

func (a *GateioAdapter) SetLeverage(ctx context.Context, contract string, leverage int) (bool, error) {
	_, err := a.http.post(ctx, fmt.Sprintf("/api/v4/futures/usdt/positions/%s/leverage", contract), map[string]any{"leverage": fmt.Sprintf("%d", leverage)})
	if err != nil {
		if IsIdempotentSuccess(err) {
			return true, nil
		}
		return false, fmt.Errorf("set_leverage: %w", err)
	}
	return true, nil
}

type gateOrderResponse struct {
	ID int64 `json:"id"`
}

func (a *GateioAdapter) PlaceTrigger(ctx context.Context, contract string, side types.Side, triggerPrice, size decimal.Decimal, reduceOnly bool, tp, sl *decimal.Decimal) (string, error) {
	// Gate.io signs size by order direction: positive buys, negative sells,
	// so closing a long is a negative reduce-only size.
	signedSize := size
	if side == types.OpenShort || side == types.CloseLong {
		signedSize = size.Neg()
	}
	payload := map[string]any{
		"initial": map[string]any{"contract": contract, "size": signedSize.IntPart(), "reduce_only": reduceOnly},
		"trigger": map[string]any{"price": triggerPrice.String(), "rule": triggerRule(side)},
	}
	body, err := a.http.post(ctx, "/api/v4/futures/usdt/price_orders", payload)
	if err != nil {
		return "", fmt.Errorf("place_trigger: %w", err)
	}
	var resp gateOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("place_trigger: unparseable response: %w", err)
	}
	return fmt.Sprintf("%d", resp.ID), nil
}

func triggerRule(side types.Side) int {
	// rule 1: trigger when price >= trigger_price; rule 2: price <= trigger_price.
	if side == types.OpenShort || side == types.CloseLong {
		return 1
	}
	return 2
}

func (a *GateioAdapter) CancelTrigger(ctx context.Context, orderID string) (bool, bool, error) {
	_, err := a.http.delete(ctx, "/api/v4/futures/usdt/price_orders/"+orderID)
	if err != nil {
		if IsIdempotentSuccess(err) {
			return true, true, nil
		}
		return false, false, fmt.Errorf("cancel_trigger: %w", err)
	}
	return true, false, nil
}

func (a *GateioAdapter) PlaceMarket(ctx context.Context, contract string, size decimal.Decimal, reduceOnly bool) (string, error) {
	body, err := a.http.post(ctx, "/api/v4/futures/usdt/orders", map[string]any{
		"contract": contract, "size": size.IntPart(), "price": "0",
		"tif": "ioc", "reduce_only": reduceOnly,
	})
	if err != nil {
		return "", fmt.Errorf("place_market: %w", err)
	}
	var resp gateOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("place_market: unparseable response: %w", err)
	}
	return fmt.Sprintf("%d", resp.ID), nil
}

func (a *GateioAdapter) ClosePosition(ctx context.Context, contract string) error {
	_, err := a.http.post(ctx, "/api/v4/futures/usdt/orders", map[string]any{
		"contract": contract, "size": 0, "price": "0", "tif": "ioc", "close": true,
	})
	if err != nil && !IsIdempotentSuccess(err) {
		return fmt.Errorf("close_position: %w", err)
	}
	return nil
}
