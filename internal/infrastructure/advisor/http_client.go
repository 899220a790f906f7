package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
)

// HTTPAdvisor calls an external assessment service for each qualified
// signal. Errors and timeouts are surfaced to the caller; the risk gate
// treats them as "no adjustment".
type HTTPAdvisor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAdvisor(baseURL string) *HTTPAdvisor {
	return &HTTPAdvisor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *HTTPAdvisor) Assess(ctx context.Context, signal *domain.TradeSignal) (*domain.Advice, error) {
	payload := map[string]any{
		"id":         signal.ID,
		"symbol":     signal.Symbol,
		"side":       string(signal.Side),
		"entry":      signal.Entry,
		"stop":       signal.Stop,
		"target":     signal.Target,
		"confidence": signal.Confidence,
		"entry_type": string(signal.EntryType),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Veto      bool    `json:"veto"`
		RiskScale float64 `json:"risk_scale"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	return &domain.Advice{Veto: result.Veto, RiskScale: result.RiskScale}, nil
}
