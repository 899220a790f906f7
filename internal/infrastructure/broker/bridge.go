package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8787"
	DefaultWSURL   = "ws://127.0.0.1:8787/stream"

	recvWindow = 5000
)

// BridgeAdapter talks to the terminal bridge: signed REST for account,
// orders and history, a websocket stream for ticks and closed bars. It
// implements domain.Broker.
type BridgeAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu            sync.Mutex
	wsConn        *websocket.Conn
	tickCallbacks []func(domain.Tick)
	barCallbacks  []func(domain.Bar)
	symbols       []string
	timeframes    []domain.Timeframe
	closed        bool
}

func NewBridgeAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BridgeAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &BridgeAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// --- REST API ---

func (b *BridgeAdapter) sign(params string, timestamp int64) string {
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

type bridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b *BridgeAdapter) sendRequest(ctx context.Context, method, path string, payload any, out any) error {
	timestamp := time.Now().UnixMilli()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", b.apiKey)
	req.Header.Set("X-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-SIGN", b.sign(string(body), timestamp))
	req.Header.Set("X-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		// Order endpoints answer with a typed rejection the executor can
		// classify for retry.
		var reject bridgeError
		if json.Unmarshal(respBody, &reject) == nil && reject.Code != "" {
			return &domain.OrderReject{Code: domain.RejectCode(reject.Code), Message: reject.Message}
		}
		return fmt.Errorf("bridge error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

func (b *BridgeAdapter) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	path := fmt.Sprintf("/api/v1/bars?symbol=%s&timeframe=%s&limit=%d", symbol, tf, limit)

	var result struct {
		Bars []struct {
			Time   int64   `json:"time"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume float64 `json:"volume"`
		} `json:"bars"`
	}
	if err := b.sendRequest(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(result.Bars))
	for _, raw := range result.Bars {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			Time:      time.Unix(raw.Time, 0).UTC(),
			Open:      raw.Open,
			High:      raw.High,
			Low:       raw.Low,
			Close:     raw.Close,
			Volume:    raw.Volume,
		})
	}
	return bars, nil
}

func (b *BridgeAdapter) GetTick(ctx context.Context, symbol string) (*domain.Tick, error) {
	var result struct {
		Bid  float64 `json:"bid"`
		Ask  float64 `json:"ask"`
		Time int64   `json:"time_ms"`
	}
	if err := b.sendRequest(ctx, "GET", "/api/v1/tick?symbol="+symbol, nil, &result); err != nil {
		return nil, err
	}
	return &domain.Tick{
		Symbol: symbol,
		Bid:    result.Bid,
		Ask:    result.Ask,
		Time:   time.UnixMilli(result.Time).UTC(),
	}, nil
}

func (b *BridgeAdapter) GetSymbolSpec(ctx context.Context, symbol string) (*domain.SymbolSpec, error) {
	var spec domain.SymbolSpec
	if err := b.sendRequest(ctx, "GET", "/api/v1/symbols/"+symbol, nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (b *BridgeAdapter) AccountEquity(ctx context.Context) (float64, error) {
	var result struct {
		Equity float64 `json:"equity"`
	}
	if err := b.sendRequest(ctx, "GET", "/api/v1/account", nil, &result); err != nil {
		return 0, err
	}
	return result.Equity, nil
}

func (b *BridgeAdapter) SendOrder(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	payload := map[string]any{
		"client_id": req.ClientID,
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"kind":      string(req.Kind),
		"lots":      req.Lots,
		"price":     req.Price,
		"stop":      req.Stop,
		"target":    req.Target,
	}
	if !req.Expiry.IsZero() {
		payload["expiry_ms"] = req.Expiry.UnixMilli()
	}

	var result struct {
		Ticket        int64   `json:"ticket"`
		ExecutedPrice float64 `json:"executed_price"`
		ExecutedLots  float64 `json:"executed_lots"`
		Partial       bool    `json:"partial"`
	}
	if err := b.sendRequest(ctx, "POST", "/api/v1/orders", payload, &result); err != nil {
		return nil, err
	}
	return &domain.OrderResult{
		Ticket:        result.Ticket,
		ExecutedPrice: result.ExecutedPrice,
		ExecutedLots:  result.ExecutedLots,
		Partial:       result.Partial,
	}, nil
}

func (b *BridgeAdapter) ModifyPosition(ctx context.Context, ticket int64, stop, target float64) error {
	payload := map[string]any{"stop": stop, "target": target}
	path := fmt.Sprintf("/api/v1/positions/%d/modify", ticket)
	return b.sendRequest(ctx, "POST", path, payload, nil)
}

func (b *BridgeAdapter) ClosePosition(ctx context.Context, ticket int64, lots float64) (*domain.OrderResult, error) {
	payload := map[string]any{"lots": lots}
	path := fmt.Sprintf("/api/v1/positions/%d/close", ticket)

	var result domain.OrderResult
	if err := b.sendRequest(ctx, "POST", path, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *BridgeAdapter) OpenPositions(ctx context.Context) ([]*domain.OpenPosition, error) {
	var result struct {
		Positions []struct {
			Ticket     int64   `json:"ticket"`
			Symbol     string  `json:"symbol"`
			Side       string  `json:"side"`
			Lots       float64 `json:"lots"`
			EntryPrice float64 `json:"entry_price"`
			Stop       float64 `json:"stop"`
			Target     float64 `json:"target"`
			OpenedAt   int64   `json:"opened_at"`
			ClientID   string  `json:"client_id"`
		} `json:"positions"`
	}
	if err := b.sendRequest(ctx, "GET", "/api/v1/positions", nil, &result); err != nil {
		return nil, err
	}

	positions := make([]*domain.OpenPosition, 0, len(result.Positions))
	for _, raw := range result.Positions {
		positions = append(positions, &domain.OpenPosition{
			Ticket:     raw.Ticket,
			Symbol:     raw.Symbol,
			Side:       domain.Side(raw.Side),
			Lots:       raw.Lots,
			EntryPrice: raw.EntryPrice,
			Stop:       raw.Stop,
			Target:     raw.Target,
			OpenedAt:   time.Unix(raw.OpenedAt, 0).UTC(),
			ClientID:   raw.ClientID,
		})
	}
	return positions, nil
}

func (b *BridgeAdapter) DealsByTicket(ctx context.Context, ticket int64) ([]*domain.Deal, error) {
	var result struct {
		Deals []struct {
			Ticket int64   `json:"ticket"`
			Symbol string  `json:"symbol"`
			Lots   float64 `json:"lots"`
			Price  float64 `json:"price"`
			Profit float64 `json:"profit"`
			Reason string  `json:"reason"`
			Time   int64   `json:"time_ms"`
		} `json:"deals"`
	}
	path := fmt.Sprintf("/api/v1/deals?ticket=%d", ticket)
	if err := b.sendRequest(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}

	deals := make([]*domain.Deal, 0, len(result.Deals))
	for _, raw := range result.Deals {
		deals = append(deals, &domain.Deal{
			Ticket: raw.Ticket,
			Symbol: raw.Symbol,
			Lots:   raw.Lots,
			Price:  raw.Price,
			Profit: raw.Profit,
			Reason: domain.ExitReason(raw.Reason),
			Time:   time.UnixMilli(raw.Time).UTC(),
		})
	}
	return deals, nil
}

// --- WebSocket stream ---

func (b *BridgeAdapter) OnTick(callback func(domain.Tick)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickCallbacks = append(b.tickCallbacks, callback)
}

func (b *BridgeAdapter) OnBarClose(callback func(domain.Bar)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.barCallbacks = append(b.barCallbacks, callback)
}

// Subscribe connects the stream (if needed) and subscribes to tick and
// bar-close events for the given symbols and timeframes. The read loop
// reconnects and resubscribes on its own after a drop.
func (b *BridgeAdapter) Subscribe(symbols []string, timeframes []domain.Timeframe) error {
	b.mu.Lock()
	b.symbols = symbols
	b.timeframes = timeframes
	connected := b.wsConn != nil
	b.mu.Unlock()

	if connected {
		return b.subscribe()
	}
	if err := b.connect(); err != nil {
		return err
	}
	go b.readLoop()
	return b.subscribe()
}

// Close stops the stream permanently.
func (b *BridgeAdapter) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.wsConn != nil {
		b.wsConn.Close()
	}
}

func (b *BridgeAdapter) connect() error {
	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.wsConn = c
	b.mu.Unlock()
	return nil
}

func (b *BridgeAdapter) subscribe() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsConn == nil || len(b.symbols) == 0 {
		return nil
	}

	tfs := make([]string, len(b.timeframes))
	for i, tf := range b.timeframes {
		tfs[i] = string(tf)
	}
	subMsg := map[string]any{
		"op":         "subscribe",
		"symbols":    b.symbols,
		"timeframes": tfs,
	}
	return b.wsConn.WriteJSON(subMsg)
}

type streamEvent struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TimeMs int64   `json:"time_ms"`

	Timeframe string  `json:"timeframe"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (b *BridgeAdapter) readLoop() {
	for {
		b.mu.Lock()
		conn := b.wsConn
		closed := b.closed
		b.mu.Unlock()
		if closed || conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("stream read failed", zap.Error(err))
			conn.Close()
			b.mu.Lock()
			b.wsConn = nil
			closed = b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			b.reconnect()
			continue
		}

		var event streamEvent
		if err := json.Unmarshal(message, &event); err != nil {
			b.logger.Warn("stream message unreadable", zap.Error(err))
			continue
		}

		switch event.Type {
		case "tick":
			tick := domain.Tick{
				Symbol: event.Symbol,
				Bid:    event.Bid,
				Ask:    event.Ask,
				Time:   time.UnixMilli(event.TimeMs).UTC(),
			}
			for _, cb := range b.snapshotTickCallbacks() {
				cb(tick)
			}
		case "bar":
			bar := domain.Bar{
				Symbol:    event.Symbol,
				Timeframe: domain.Timeframe(event.Timeframe),
				Time:      time.UnixMilli(event.TimeMs).UTC(),
				Open:      event.Open,
				High:      event.High,
				Low:       event.Low,
				Close:     event.Close,
				Volume:    event.Volume,
			}
			for _, cb := range b.snapshotBarCallbacks() {
				cb(bar)
			}
		}
	}
}

func (b *BridgeAdapter) reconnect() {
	backoff := time.Second
	for {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}

		if err := b.connect(); err != nil {
			b.logger.Warn("stream reconnect failed", zap.Duration("retry_in", backoff), zap.Error(err))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		if err := b.subscribe(); err != nil {
			b.logger.Warn("stream resubscribe failed", zap.Error(err))
			continue
		}
		b.logger.Info("stream reconnected")
		return
	}
}

func (b *BridgeAdapter) snapshotTickCallbacks() []func(domain.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(domain.Tick), len(b.tickCallbacks))
	copy(out, b.tickCallbacks)
	return out
}

func (b *BridgeAdapter) snapshotBarCallbacks() []func(domain.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(domain.Bar), len(b.barCallbacks))
	copy(out, b.barCallbacks)
	return out
}
