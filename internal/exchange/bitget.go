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

// BitgetAdapter implements SourceClient and MirrorClient against a
// Bitget-style USDT-futures API. Every payload is parsed through an explicit
// field-alias list rather than treated as an open dict, per the adapter
// design in SPEC_FULL.md.
type BitgetAdapter struct {
	http *signedHTTPClient
	ws   *wsTickerFeed
}

func NewBitgetAdapter(cfg *config.Config, creds config.Credentials, baseURL, wsURL string) *BitgetAdapter {
	return &BitgetAdapter{
		http: newSignedHTTPClient(baseURL, creds.APIKey, creds.APISecret, creds.Passphrase, cfg.APIRetryCount, cfg.APITimeout),
		ws:   newWSTickerFeed(wsURL),
	}
}

func (a *BitgetAdapter) Start(ctx context.Context) { a.ws.Start(ctx) }
func (a *BitgetAdapter) Stop()                     { a.ws.Stop() }

type bitgetTickerPayload struct {
	Data struct {
		Last         string `json:"last"`
		LastPr       string `json:"lastPr"`
		High24h      string `json:"high24h"`
		Low24h       string `json:"low24h"`
		BaseVolume   string `json:"baseVolume"`
		Chg24h       string `json:"chgUTC"`
		ChangePct24h string `json:"change24h"`
	} `json:"data"`
}

func (a *BitgetAdapter) GetTicker(ctx context.Context) (types.Ticker, error) {
	if wsPrice, ok := a.ws.LastPrice(); ok {
		return types.Ticker{Last: wsPrice, ObservedAt: time.Now()}, nil
	}

	body, err := a.http.get(ctx, "/api/v2/mix/market/ticker")
	if err != nil {
		return types.Ticker{}, fmt.Errorf("get_ticker: %w", err)
	}
	var p bitgetTickerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return types.Ticker{}, fmt.Errorf("get_ticker: unparseable payload: %w", err)
	}

	last := firstNonEmpty(p.Data.Last, p.Data.LastPr)
	lastDec, err := parseDecimalOrZero(last)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("get_ticker: %w", err)
	}
	high, _ := parseDecimalOrZero(p.Data.High24h)
	low, _ := parseDecimalOrZero(p.Data.Low24h)
	vol, _ := parseDecimalOrZero(p.Data.BaseVolume)
	chg, _ := parseDecimalOrZero(firstNonEmpty(p.Data.Chg24h, p.Data.ChangePct24h))

	return types.Ticker{
		Last: lastDec, High: high, Low: low, Volume: vol, ChangePct: chg,
		ObservedAt: time.Now(),
	}, nil
}

type bitgetPositionPayload struct {
	Data []struct {
		Symbol          string `json:"symbol"`
		HoldSide        string `json:"holdSide"`
		Total           string `json:"total"`
		Available       string `json:"available"`
		OpenPriceAvg    string `json:"openPriceAvg"`
		Leverage        string `json:"leverage"`
		LiquidationPrice string `json:"liquidationPrice"`
	} `json:"data"`
}

func (a *BitgetAdapter) GetPositions(ctx context.Context, contract string) ([]types.Position, error) {
	body, err := a.http.get(ctx, "/api/v2/mix/position/single-position?symbol="+contract)
	if err != nil {
		return nil, fmt.Errorf("get_positions: %w", err)
	}
	var p bitgetPositionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("get_positions: unparseable payload: %w", err)
	}

	out := make([]types.Position, 0, len(p.Data))
	for _, d := range p.Data {
		size, err := parseDecimalOrZero(firstNonEmpty(d.Total, d.Available))
		if err != nil {
			continue
		}
		if size.IsZero() {
			continue
		}
		dir := types.Long
		if d.HoldSide == "short" {
			dir = types.Short
		}
		entry, _ := parseDecimalOrZero(d.OpenPriceAvg)
		lev := 0
		if l, err := decimal.NewFromString(d.Leverage); err == nil {
			lev = int(l.IntPart())
		}
		liq, _ := parseDecimalOrZero(d.LiquidationPrice)
		out = append(out, types.Position{
			Contract: d.Symbol, Direction: dir, Size: size,
			EntryPrice: entry, Leverage: lev, LiquidationPrice: liq,
		})
	}
	return out, nil
}

type bitgetAccountPayload struct {
	Data struct {
		UsdtEquity      string `json:"usdtEquity"`
		Available       string `json:"available"`
		CrossedMaxAvailable string `json:"crossedMaxAvailable"`
	} `json:"data"`
}

func (a *BitgetAdapter) GetAccount(ctx context.Context) (types.Account, error) {
	body, err := a.http.get(ctx, "/api/v2/mix/account/account")
	if err != nil {
		return types.Account{}, fmt.Errorf("get_account: %w", err)
	}
	var p bitgetAccountPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return types.Account{}, fmt.Errorf("get_account: unparseable payload: %w", err)
	}
	equity, _ := parseDecimalOrZero(p.Data.UsdtEquity)
	avail, _ := parseDecimalOrZero(firstNonEmpty(p.Data.Available, p.Data.CrossedMaxAvailable))
	return types.Account{TotalEquity: equity, Available: avail}, nil
}

type bitgetFillPayload struct {
	Data struct {
		FillList []struct {
			OrderID  string `json:"orderId"`
			Symbol   string `json:"symbol"`
			Price    string `json:"price"`
			BaseVolume string `json:"baseVolume"`
			CTime    string `json:"cTime"`
		} `json:"fillList"`
	} `json:"data"`
}

func (a *BitgetAdapter) GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]types.Fill, error) {
	body, err := a.http.get(ctx, fmt.Sprintf("/api/v2/mix/order/fill-history?symbol=%s&minutes=%d", contract, minutes))
	if err != nil {
		return nil, fmt.Errorf("get_recent_filled_orders: %w", err)
	}
	var p bitgetFillPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("get_recent_filled_orders: unparseable payload: %w", err)
	}
	out := make([]types.Fill, 0, len(p.Data.FillList))
	for _, f := range p.Data.FillList {
		price, _ := parseDecimalOrZero(f.Price)
		size, _ := parseDecimalOrZero(f.BaseVolume)
		at := time.Now()
		if ms, err := decimal.NewFromString(f.CTime); err == nil {
			at = time.UnixMilli(ms.IntPart())
		}
		out = append(out, types.Fill{OrderID: f.OrderID, Contract: f.Symbol, Price: price, Size: size, FilledAt: at})
	}
	return out, nil
}

type bitgetTriggerPayload struct {
	Data struct {
		EntrustedList []struct {
			OrderID      string `json:"orderId"`
			PlanOrderID  string `json:"planOrderId"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			TradeSide    string `json:"tradeSide"`
			TriggerPrice string `json:"triggerPrice"`
			Size         string `json:"size"`
			Leverage     string `json:"leverage"`
			PresetTP     string `json:"presetStopSurplusPrice"`
			PresetSL     string `json:"presetStopLossPrice"`
			CTime        string `json:"cTime"`
			ReduceOnly   string `json:"reduceOnly"`
		} `json:"entrustedList"`
	} `json:"data"`
}

func (a *BitgetAdapter) GetAllTriggerOrders(ctx context.Context, contract string) ([]types.TriggerOrder, error) {
	body, err := a.http.get(ctx, "/api/v2/mix/order/orders-plan-pending?symbol="+contract)
	if err != nil {
		return nil, fmt.Errorf("get_all_trigger_orders: %w", err)
	}
	var p bitgetTriggerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("get_all_trigger_orders: unparseable payload: %w", err)
	}

	seen := make(map[string]bool)
	out := make([]types.TriggerOrder, 0, len(p.Data.EntrustedList))
	for _, o := range p.Data.EntrustedList {
		id := firstNonEmpty(o.OrderID, o.PlanOrderID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		trig, err := parseDecimalOrZero(o.TriggerPrice)
		if err != nil || trig.IsZero() {
			continue
		}
		size, err := parseDecimalOrZero(o.Size)
		if err != nil {
			continue
		}
		lev := 0
		if l, err := decimal.NewFromString(o.Leverage); err == nil {
			lev = int(l.IntPart())
		}

		side := classifyBitgetSide(o.Side, o.TradeSide, o.ReduceOnly)

		t := types.TriggerOrder{
			OrderID: id, Contract: o.Symbol, Side: side,
			TriggerPrice: trig, Size: size, Leverage: lev,
			CreatedAt: time.Now(),
		}
		if tp, err := parseDecimalOrZero(o.PresetTP); err == nil && tp.GreaterThan(decimal.Zero) {
			t.HasTP, t.TPPrice = true, tp
		}
		if sl, err := parseDecimalOrZero(o.PresetSL); err == nil && sl.GreaterThan(decimal.Zero) {
			t.HasSL, t.SLPrice = true, sl
		}
		out = append(out, t)
	}
	return out, nil
}

func classifyBitgetSide(side, tradeSide, reduceOnly string) types.Side {
	isClose := reduceOnly == "yes" || reduceOnly == "true" || tradeSide == "close"
	isLong := side == "buy" || side == "long"
	switch {
	case isClose && isLong:
		return types.CloseLong
	case isClose && !isLong:
		return types.CloseShort
	case !isClose && isLong:
		return types.OpenLong
	default:
		return types.OpenShort
	}
}

// --- MirrorClient-only methods (Bitget can also be used as a mirror venue) ---

type bitgetMarginModePayload struct {
	Data struct {
		MarginMode string `json:"marginMode"`
	} `json:"data"`
}

func (a *BitgetAdapter) GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error) {
	body, err := a.http.get(ctx, "/api/v2/mix/account/account?symbol="+contract)
	if err != nil {
		return types.UnknownMode, fmt.Errorf("get_margin_mode: %w", err)
	}
	var p bitgetMarginModePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return types.UnknownMode, fmt.Errorf("get_margin_mode: unparseable payload: %w", err)
	}
	switch p.Data.MarginMode {
	case "crossed", "cross":
		return types.Cross, nil
	case "isolated", "fixed":
		return types.Isolated, nil
	default:
		return types.UnknownMode, nil
	}
}

func (a *BitgetAdapter) ForceCrossMargin(ctx context.Context, contract string) (bool, error) {
	_, err := a.http.post(ctx, "/api/v2/mix/account/set-margin-mode", map[string]string{
		"symbol": contract, "marginMode": "crossed",
	})
	if err != nil {
		if IsIdempotentSuccess(err) {
			return true, nil
		}
		return false, fmt.Errorf("force_cross_margin: %w", err)
	}
	return true, nil
}

func (a *BitgetAdapter) SetLeverage(ctx context.Context, contract string, leverage int) (bool, error) {
	_, err := a.http.post(ctx, "/api/v2/mix/account/set-leverage", map[string]any{
		"symbol": contract, "leverage": leverage,
	})
	if err != nil {
		if IsIdempotentSuccess(err) {
			return true, nil
		}
		return false, fmt.Errorf("set_leverage: %w", err)
	}
	return true, nil
}

type placeOrderResponse struct {
	Data struct {
		OrderID string `json:"orderId"`
	} `json:"data"`
}

func (a *BitgetAdapter) PlaceTrigger(ctx context.Context, contract string, side types.Side, triggerPrice, size decimal.Decimal, reduceOnly bool, tp, sl *decimal.Decimal) (string, error) {
	payload := map[string]any{
		"symbol": contract, "side": bitgetSideString(side), "reduceOnly": reduceOnly,
		"triggerPrice": triggerPrice.String(), "size": size.String(),
	}
	if tp != nil {
		payload["presetStopSurplusPrice"] = tp.String()
	}
	if sl != nil {
		payload["presetStopLossPrice"] = sl.String()
	}
	body, err := a.http.post(ctx, "/api/v2/mix/order/place-plan-order", payload)
	if err != nil {
		return "", fmt.Errorf("place_trigger: %w", err)
	}
	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("place_trigger: unparseable response: %w", err)
	}
	return resp.Data.OrderID, nil
}

func (a *BitgetAdapter) CancelTrigger(ctx context.Context, orderID string) (bool, bool, error) {
	_, err := a.http.post(ctx, "/api/v2/mix/order/cancel-plan-order", map[string]string{"orderId": orderID})
	if err != nil {
		if IsIdempotentSuccess(err) {
			return true, true, nil
		}
		return false, false, fmt.Errorf("cancel_trigger: %w", err)
	}
	return true, false, nil
}

func (a *BitgetAdapter) PlaceMarket(ctx context.Context, contract string, size decimal.Decimal, reduceOnly bool) (string, error) {
	body, err := a.http.post(ctx, "/api/v2/mix/order/place-order", map[string]any{
		"symbol": contract, "orderType": "market", "size": size.String(),
		"reduceOnly": reduceOnly, "force": "ioc",
	})
	if err != nil {
		return "", fmt.Errorf("place_market: %w", err)
	}
	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("place_market: unparseable response: %w", err)
	}
	return resp.Data.OrderID, nil
}

func (a *BitgetAdapter) ClosePosition(ctx context.Context, contract string) error {
	_, err := a.http.post(ctx, "/api/v2/mix/order/close-positions", map[string]string{"symbol": contract})
	if err != nil && !IsIdempotentSuccess(err) {
		return fmt.Errorf("close_position: %w", err)
	}
	return nil
}

func bitgetSideString(side types.Side) string {
	if side.IsLong() {
		return "buy"
	}
	return "sell"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDecimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
