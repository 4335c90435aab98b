package order

// Tracker 维护上一轮抓取的活跃订单快照（按 ID 索引）。
// 由对账循环独占，无内部锁；外部不得并发访问。
type Tracker struct {
	orders map[string]Order
}

func NewTracker() *Tracker {
	return &Tracker{orders: make(map[string]Order)}
}

// Diff 按 ID 计算集合差：disappeared = 已跟踪 − 最新，appeared = 最新 − 已跟踪。
// 同一 ID 字段内容变化不算差异（较新的值仍会在 Sync 时替换存量）。
func (t *Tracker) Diff(latest []Order) (disappeared []Order, appeared []string) {
	latestIDs := make(map[string]struct{}, len(latest))
	for _, o := range latest {
		if o.ID == "" {
			continue
		}
		latestIDs[o.ID] = struct{}{}
		if _, tracked := t.orders[o.ID]; !tracked {
			appeared = append(appeared, o.ID)
		}
	}
	for id, o := range t.orders {
		if _, present := latestIDs[id]; !present {
			disappeared = append(disappeared, o)
		}
	}
	return disappeared, appeared
}

// Sync 用最新抓取结果重建快照：新增与存量条目一律以最新值覆盖，
// 不在最新结果中的条目被丢弃。
func (t *Tracker) Sync(latest []Order) {
	next := make(map[string]Order, len(latest))
	for _, o := range latest {
		if o.ID == "" {
			continue
		}
		next[o.ID] = o
	}
	t.orders = next
}

// EvictIgnored 将仍在场内但已被用户忽略的订单移出跟踪，
// 避免之后消失时触发用户明确拒绝过的重建。返回被移出的 ID。
func (t *Tracker) EvictIgnored(isIgnored func(orderID string) bool) []string {
	var evicted []string
	for id := range t.orders {
		if isIgnored(id) {
			delete(t.orders, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Get returns the last known order for id.
func (t *Tracker) Get(id string) (Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

// Len returns the number of tracked orders.
func (t *Tracker) Len() int {
	return len(t.orders)
}
