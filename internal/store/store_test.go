package store

import (
	"encoding/json"
	"testing"

	"order-monitor-go/order"
	"order-monitor-go/positions"
)

type stubPolicy struct {
	ignored map[string]bool
}

func (p *stubPolicy) IsIgnored(id string) bool { return p.ignored[id] }

func TestPublishCycleAndSnapshot(t *testing.T) {
	policy := &stubPolicy{ignored: map[string]bool{"2": true}}
	s := New(policy, nil)

	s.PublishCycle([]order.Order{
		{ID: "1", Status: "WORKING"},
		{ID: "2", Status: "QUEUED"},
	}, positions.Stats{LongCount: 3}, 100000)
	s.SetMonitoringActive(true)
	s.IncOrdersRecreated()

	snap := s.Snapshot()
	if len(snap.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(snap.Orders))
	}
	if !snap.Orders[0].IsMonitored || snap.Orders[1].IsMonitored {
		t.Fatalf("monitored flags wrong: %v %v",
			snap.Orders[0].IsMonitored, snap.Orders[1].IsMonitored)
	}
	if snap.PositionStats.LongCount != 3 {
		t.Fatalf("stats not carried: %+v", snap.PositionStats)
	}
	if snap.NetLiquidation != 100000 || len(snap.NetLiqHistory) != 1 {
		t.Fatalf("net liq: %v history %d", snap.NetLiquidation, len(snap.NetLiqHistory))
	}
	if !snap.MonitoringActive || snap.OrdersRecreated != 1 {
		t.Fatalf("flags: active=%v recreated=%d", snap.MonitoringActive, snap.OrdersRecreated)
	}
	if snap.LastUpdated.IsZero() {
		t.Fatal("last updated should be set")
	}
}

func TestSnapshotReflectsLiveIgnoreChanges(t *testing.T) {
	policy := &stubPolicy{ignored: map[string]bool{}}
	s := New(policy, nil)
	s.PublishCycle([]order.Order{{ID: "7", Status: "WORKING"}}, positions.Stats{}, 0)

	if snap := s.Snapshot(); !snap.Orders[0].IsMonitored {
		t.Fatal("order should start monitored")
	}

	// 忽略名单变更不经过 PublishCycle，下一次快照直接可见
	policy.ignored["7"] = true
	if snap := s.Snapshot(); snap.Orders[0].IsMonitored {
		t.Fatal("snapshot should see the updated ignore set")
	}
}

func TestZeroNetLiqKeepsLastValue(t *testing.T) {
	s := New(&stubPolicy{}, nil)
	s.PublishCycle(nil, positions.Stats{}, 50000)
	// 账户拉取降级的周期不应把净值清零
	s.PublishCycle(nil, positions.Stats{}, 0)

	snap := s.Snapshot()
	if snap.NetLiquidation != 50000 {
		t.Fatalf("net liq = %v, want 50000", snap.NetLiquidation)
	}
	if len(snap.NetLiqHistory) != 1 {
		t.Fatalf("degraded cycle should not add history, got %d", len(snap.NetLiqHistory))
	}
}

func TestNetLiqHistoryBounded(t *testing.T) {
	s := New(&stubPolicy{}, nil)
	for i := 1; i <= 150; i++ {
		s.PublishCycle(nil, positions.Stats{}, float64(i))
	}
	snap := s.Snapshot()
	if len(snap.NetLiqHistory) != netLiqHistoryCap {
		t.Fatalf("history length = %d, want %d", len(snap.NetLiqHistory), netLiqHistoryCap)
	}
	if snap.NetLiqHistory[0].Value != 51 || snap.NetLiqHistory[99].Value != 150 {
		t.Fatalf("history window wrong: first=%v last=%v",
			snap.NetLiqHistory[0].Value, snap.NetLiqHistory[99].Value)
	}
}

func TestNetLiqPointJSONShape(t *testing.T) {
	raw, err := json.Marshal(NetLiqPoint{TS: 1700000000, Value: 123456.5})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[1700000000,123456.5]" {
		t.Fatalf("marshal = %s", raw)
	}
	var p NetLiqPoint
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	if p.TS != 1700000000 || p.Value != 123456.5 {
		t.Fatalf("round trip: %+v", p)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(&stubPolicy{}, nil)
	s.PublishCycle([]order.Order{{ID: "1"}}, positions.Stats{}, 0)

	snap := s.Snapshot()
	snap.Orders[0].ID = "mutated"

	if s.Snapshot().Orders[0].ID != "1" {
		t.Fatal("snapshot mutation leaked into store")
	}
}
