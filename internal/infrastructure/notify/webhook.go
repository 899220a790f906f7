package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

// WebhookNotifier posts trade events as JSON to an operator-supplied URL.
// Delivery is best effort: a failed post is logged and dropped, never
// retried, and never blocks the trading path.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) TradeOpened(pos *domain.OpenPosition) {
	n.post(map[string]any{
		"event":    "trade_opened",
		"ticket":   pos.Ticket,
		"symbol":   pos.Symbol,
		"side":     string(pos.Side),
		"lots":     pos.Lots,
		"entry":    pos.EntryPrice,
		"stop":     pos.Stop,
		"target":   pos.Target,
		"strategy": string(pos.EntryType),
	})
}

func (n *WebhookNotifier) TradeClosed(result *domain.TradeResult) {
	n.post(map[string]any{
		"event":  "trade_closed",
		"ticket": result.Ticket,
		"symbol": result.Symbol,
		"profit": result.Profit,
		"win":    result.Win,
		"reason": string(result.Reason),
	})
}

func (n *WebhookNotifier) HaltChanged(reason string, active bool) {
	n.post(map[string]any{
		"event":  "halt_changed",
		"reason": reason,
		"active": active,
	})
}

func (n *WebhookNotifier) post(payload map[string]any) {
	if n.url == "" {
		return
	}
	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			return
		}
		resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
		if err != nil {
			n.logger.Warn("notification delivery failed", zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
}
