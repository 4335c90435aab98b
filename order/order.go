package order

// Instrument identifies the traded security on a leg.
type Instrument struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType,omitempty"`
}

// Leg is one leg of a broker order.
type Leg struct {
	Instruction    string     `json:"instruction"`
	PositionEffect string     `json:"positionEffect,omitempty"`
	Quantity       float64    `json:"quantity"`
	Instrument     Instrument `json:"instrument"`
}

// Order is the immutable snapshot of a working broker order as of one fetch.
// A later fetch of the same identifier replaces the whole value; nothing is
// mutated in place.
type Order struct {
	ID         string      `json:"orderId"`
	Status     string      `json:"status"`
	Type       string      `json:"orderType"`
	Duration   string      `json:"duration,omitempty"`
	Quantity   float64     `json:"quantity"`
	StopPrice  float64     `json:"stopPrice,omitempty"`
	LimitPrice float64     `json:"price,omitempty"`
	Instrument *Instrument `json:"instrument,omitempty"`
	Legs       []Leg       `json:"orderLegCollection"`

	// Presentation-only fields, recomputed on publish/read.
	IsMonitored     bool    `json:"isMonitored"`
	CurrentPrice    float64 `json:"currentPrice,omitempty"`
	IsAdjustedPrice bool    `json:"isAdjustedPrice,omitempty"`
}

// activeStatuses 视为“仍在场内”的订单状态；其余状态在抓取边界直接过滤掉。
var activeStatuses = map[string]struct{}{
	"WORKING":               {},
	"ACCEPTED":              {},
	"PENDING_ACTIVATION":    {},
	"QUEUED":                {},
	"AWAITING_PARENT_ORDER": {},
}

// IsActiveStatus reports whether a broker status belongs to the tracked universe.
func IsActiveStatus(status string) bool {
	_, ok := activeStatuses[status]
	return ok
}

// FilterActive keeps only orders in an active status.
func FilterActive(orders []Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if IsActiveStatus(o.Status) {
			out = append(out, o)
		}
	}
	return out
}
