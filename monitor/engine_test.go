package monitor

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-monitor-go/gateway"
	"order-monitor-go/ignore"
	"order-monitor-go/infrastructure/alert"
	"order-monitor-go/infrastructure/logger"
	"order-monitor-go/internal/store"
	"order-monitor-go/order"
	"order-monitor-go/positions"
)

type mockBroker struct {
	orders     []order.Order
	fetchErr   error
	placed     []order.PlacementSpec
	placeErr   error
	positions  []positions.Position
	netLiq     float64
	accountErr error
}

func (m *mockBroker) FetchActiveOrders(string) ([]order.Order, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.orders, nil
}

func (m *mockBroker) PlaceOrder(_ string, spec order.PlacementSpec) (string, error) {
	if m.placeErr != nil {
		return "", m.placeErr
	}
	m.placed = append(m.placed, spec)
	return "9999", nil
}

func (m *mockBroker) FetchAccountSnapshot(string) ([]positions.Position, float64, error) {
	if m.accountErr != nil {
		return nil, 0, m.accountErr
	}
	return m.positions, m.netLiq, nil
}

func stopOrder(id, symbol string) order.Order {
	return order.Order{
		ID: id, Status: "WORKING", Type: "STOP", Duration: "GOOD_TILL_CANCEL",
		Quantity: 1, StopPrice: 50,
		Legs: []order.Leg{{Instruction: "SELL", Quantity: 1,
			Instrument: order.Instrument{Symbol: symbol}}},
	}
}

func newTestEngine(t *testing.T, broker *mockBroker) (*Engine, *store.Store, *ignore.Registry) {
	t.Helper()
	reg := ignore.Load(filepath.Join(t.TempDir(), "ignored.json"), logger.NewNop())
	st := store.New(reg, nil)
	e := &Engine{
		Client:    broker,
		Account:   "HASH1",
		Registry:  reg,
		Store:     st,
		Log:       logger.NewNop(),
		Interval:  time.Second,
		CachePath: filepath.Join(t.TempDir(), "orders.json"),
		tracker:   order.NewTracker(),
	}
	return e, st, reg
}

func TestDisappearedOrderIsRecreated(t *testing.T) {
	broker := &mockBroker{
		orders: []order.Order{stopOrder("1", "AAPL"), stopOrder("2", "MSFT")},
		netLiq: 100000,
	}
	e, st, _ := newTestEngine(t, broker)

	delay := e.runCycle()
	assert.Equal(t, time.Second, delay)
	assert.Empty(t, broker.placed, "first cycle only establishes the baseline")

	broker.orders = []order.Order{stopOrder("2", "MSFT")}
	e.runCycle()

	require.Len(t, broker.placed, 1)
	spec := broker.placed[0]
	assert.Equal(t, "STOP", spec.OrderType)
	require.Len(t, spec.Legs, 1)
	assert.Equal(t, "AAPL", spec.Legs[0].Instrument.Symbol)
	assert.Equal(t, 1, st.Snapshot().OrdersRecreated)
}

func TestIgnoredOrderIsNotRecreated(t *testing.T) {
	broker := &mockBroker{
		orders: []order.Order{stopOrder("1", "AAPL")},
	}
	e, st, reg := newTestEngine(t, broker)

	e.runCycle()
	reg.Add("1")
	broker.orders = nil
	e.runCycle()

	assert.Empty(t, broker.placed, "ignored order must not be re-submitted")
	assert.Equal(t, 0, st.Snapshot().OrdersRecreated)
}

func TestIgnoredOrderEvictedFromTracking(t *testing.T) {
	broker := &mockBroker{orders: []order.Order{stopOrder("1", "AAPL")}}
	e, _, reg := newTestEngine(t, broker)

	e.runCycle()
	reg.Add("1")
	e.runCycle() // 仍然活跃，但被忽略后移出跟踪集合

	broker.orders = nil
	e.runCycle()
	assert.Empty(t, broker.placed)
}

func TestBackoffByErrorClass(t *testing.T) {
	cases := []struct {
		err   error
		delay time.Duration
	}{
		{&gateway.AuthError{Status: 401, Msg: "expired"}, backoffAuth},
		{&gateway.APIError{Status: 500, Msg: "oops"}, backoffAPI},
		{&gateway.ConnectivityError{Err: errors.New("refused")}, backoffConnectivity},
		{errors.New("surprise"), backoffUnexpected},
	}
	for _, tc := range cases {
		broker := &mockBroker{fetchErr: tc.err}
		e, _, _ := newTestEngine(t, broker)
		assert.Equal(t, tc.delay, e.runCycle(), "error %v", tc.err)
	}
}

func TestAccountFetchFailureDegrades(t *testing.T) {
	broker := &mockBroker{
		orders:     []order.Order{stopOrder("1", "AAPL")},
		accountErr: &gateway.APIError{Status: 503, Msg: "unavailable"},
	}
	e, st, _ := newTestEngine(t, broker)

	delay := e.runCycle()
	assert.Equal(t, time.Second, delay, "account failure must not abort the cycle")

	snap := st.Snapshot()
	require.Len(t, snap.Orders, 1)
	assert.Zero(t, snap.NetLiquidation)
}

func TestRecreateFailureAlertsAndCounts(t *testing.T) {
	mock := alert.NewMockChannel("mock")
	broker := &mockBroker{orders: []order.Order{stopOrder("1", "AAPL")}}
	e, st, _ := newTestEngine(t, broker)
	e.Alerts = alert.NewManager([]alert.Channel{mock}, time.Minute)

	e.runCycle()
	broker.orders = nil
	broker.placeErr = &gateway.APIError{Status: 400, Msg: "rejected"}
	e.runCycle()

	assert.Equal(t, 0, st.Snapshot().OrdersRecreated)
	require.Equal(t, 1, mock.Count())
	assert.Equal(t, "ERROR", mock.Alerts()[0].Level)
}

func TestOrderCacheRestoredOnStart(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "orders.json")
	require.NoError(t, SaveOrders(cachePath, []order.Order{stopOrder("1", "AAPL")}))

	cached, err := LoadOrders(cachePath)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "1", cached[0].ID)

	// 缺失文件返回空集合而不是错误
	none, err := LoadOrders(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPricesAttachedToPublishedOrders(t *testing.T) {
	broker := &mockBroker{
		orders: []order.Order{stopOrder("1", "SPX241220P05000000")},
		positions: []positions.Position{{
			Symbol: "SPX241220P05000000", AssetType: "OPTION",
			ShortQuantity: 2, MarketValue: -3000,
		}},
		netLiq: 100000,
	}
	e, st, _ := newTestEngine(t, broker)
	e.runCycle()

	snap := st.Snapshot()
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, 15.0, snap.Orders[0].CurrentPrice)
	assert.True(t, snap.Orders[0].IsAdjustedPrice)
	assert.Equal(t, 1, snap.PositionStats.SPXActiveStops)
}
