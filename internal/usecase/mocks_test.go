package usecase_test

import (
	"context"
	"sync"

	"github.com/vitos/fx_trade_sniper/internal/domain"
)

// MockBroker is a scriptable broker gateway shared across the usecase tests.
type MockBroker struct {
	mu sync.Mutex

	Bars      map[domain.Timeframe][]domain.Bar
	Tick      *domain.Tick
	Spec      *domain.SymbolSpec
	Equity    float64
	Positions []*domain.OpenPosition
	Deals     map[int64][]*domain.Deal

	// SendErrs is consumed one per SendOrder call; nil entries succeed.
	SendErrs    []error
	SendResult  *domain.OrderResult
	SendCalls   int
	LastRequest *domain.OrderRequest
	// OnSend, when set, observes each request before the scripted error is
	// applied. Runs under the mock's lock.
	OnSend func(req *domain.OrderRequest)

	ModifyCalls  int
	LastStop     float64
	LastTarget   float64
	CloseCalls   int
	LastCloseLot float64
	CloseResult  *domain.OrderResult

	// ModifyGate, when set, blocks ModifyPosition until the channel is
	// closed (or receives), without holding the mock's lock.
	ModifyGate chan struct{}
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		Bars:  make(map[domain.Timeframe][]domain.Bar),
		Deals: make(map[int64][]*domain.Deal),
		Spec: &domain.SymbolSpec{
			Symbol:    "EURUSD",
			Digits:    5,
			PipSize:   0.0001,
			TickSize:  0.0001,
			TickValue: 1.0,
			MinLot:    0.01,
			LotStep:   0.01,
			MaxLot:    100,
			FillModes: []string{"IOC", "FOK"},
		},
		Tick:        &domain.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002},
		Equity:      10000,
		SendResult:  &domain.OrderResult{Ticket: 1001, ExecutedPrice: 1.1002, ExecutedLots: 1.0},
		CloseResult: &domain.OrderResult{Ticket: 1001, ExecutedPrice: 1.1050, ExecutedLots: 1.0},
	}
}

func (m *MockBroker) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	return m.Bars[tf], nil
}

func (m *MockBroker) GetTick(ctx context.Context, symbol string) (*domain.Tick, error) {
	return m.Tick, nil
}

func (m *MockBroker) GetSymbolSpec(ctx context.Context, symbol string) (*domain.SymbolSpec, error) {
	return m.Spec, nil
}

func (m *MockBroker) AccountEquity(ctx context.Context) (float64, error) {
	return m.Equity, nil
}

func (m *MockBroker) SendOrder(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendCalls++
	cp := *req
	m.LastRequest = &cp
	if m.OnSend != nil {
		m.OnSend(&cp)
	}
	if len(m.SendErrs) > 0 {
		err := m.SendErrs[0]
		m.SendErrs = m.SendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.SendResult, nil
}

func (m *MockBroker) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SendCalls
}

func (m *MockBroker) ModifyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ModifyCalls
}

func (m *MockBroker) LastReq() *domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequest
}

func (m *MockBroker) ModifyPosition(ctx context.Context, ticket int64, stop, target float64) error {
	if m.ModifyGate != nil {
		<-m.ModifyGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModifyCalls++
	m.LastStop = stop
	m.LastTarget = target
	return nil
}

func (m *MockBroker) ClosePosition(ctx context.Context, ticket int64, lots float64) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	m.LastCloseLot = lots
	return m.CloseResult, nil
}

func (m *MockBroker) OpenPositions(ctx context.Context) ([]*domain.OpenPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Positions, nil
}

func (m *MockBroker) DealsByTicket(ctx context.Context, ticket int64) ([]*domain.Deal, error) {
	return m.Deals[ticket], nil
}

func (m *MockBroker) OnTick(callback func(domain.Tick))       {}
func (m *MockBroker) OnBarClose(callback func(domain.Bar))    {}
func (m *MockBroker) Subscribe([]string, []domain.Timeframe) error { return nil }

// MockStateRepo keeps risk state in memory.
type MockStateRepo struct {
	State     *domain.RiskState
	SaveCalls int
}

func (r *MockStateRepo) LoadRiskState(ctx context.Context) (*domain.RiskState, error) {
	return r.State, nil
}

func (r *MockStateRepo) SaveRiskState(ctx context.Context, state *domain.RiskState) error {
	r.State = state
	r.SaveCalls++
	return nil
}

// MockJournal records appended results.
type MockJournal struct {
	Results []*domain.TradeResult
}

func (j *MockJournal) AppendTradeResult(ctx context.Context, result *domain.TradeResult) error {
	j.Results = append(j.Results, result)
	return nil
}

func (j *MockJournal) ListTradeResults(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	return j.Results, nil
}

// MockPosRepo stores positions by ticket.
type MockPosRepo struct {
	Saved   map[int64]*domain.OpenPosition
	Deleted []int64
}

func NewMockPosRepo() *MockPosRepo {
	return &MockPosRepo{Saved: make(map[int64]*domain.OpenPosition)}
}

func (r *MockPosRepo) SavePosition(ctx context.Context, pos *domain.OpenPosition) error {
	r.Saved[pos.Ticket] = pos
	return nil
}

func (r *MockPosRepo) DeletePosition(ctx context.Context, ticket int64) error {
	r.Deleted = append(r.Deleted, ticket)
	delete(r.Saved, ticket)
	return nil
}

func (r *MockPosRepo) ListPositions(ctx context.Context) ([]*domain.OpenPosition, error) {
	out := make([]*domain.OpenPosition, 0, len(r.Saved))
	for _, p := range r.Saved {
		out = append(out, p)
	}
	return out, nil
}

// MockAdvisor returns a fixed advice.
type MockAdvisor struct {
	Advice *domain.Advice
	Err    error
	Calls  int
}

func (a *MockAdvisor) Assess(ctx context.Context, signal *domain.TradeSignal) (*domain.Advice, error) {
	a.Calls++
	return a.Advice, a.Err
}

// MockSink counts recorded trade results and released reservations.
type MockSink struct {
	Results  []*domain.TradeResult
	Released []string
}

func (s *MockSink) RecordResult(ctx context.Context, res *domain.TradeResult) {
	s.Results = append(s.Results, res)
}

func (s *MockSink) Release(symbol string) {
	s.Released = append(s.Released, symbol)
}
