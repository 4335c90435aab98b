package order

import "errors"

// PlacementSpec 重建下单请求体。只复刻单腿订单的经济意图；
// 母子单关联与多腿价差结构不在重建范围内。
type PlacementSpec struct {
	OrderType         string    `json:"orderType"`
	Session           string    `json:"session"`
	Duration          string    `json:"duration"`
	OrderStrategyType string    `json:"orderStrategyType"`
	Legs              []SpecLeg `json:"orderLegCollection"`
	StopPrice         float64   `json:"stopPrice,omitempty"`
	Price             float64   `json:"price,omitempty"`
}

type SpecLeg struct {
	Instruction string     `json:"instruction"`
	Quantity    float64    `json:"quantity"`
	Instrument  Instrument `json:"instrument"`
}

var ErrNoSymbol = errors.New("cannot rebuild order: missing symbol")

// BuildPlacementSpec derives a single-leg re-submission from the last known
// order. Stop/limit prices are attached only when present on the source.
func BuildPlacementSpec(o Order) (PlacementSpec, error) {
	symbol, ok := SymbolOf(o)
	if !ok {
		return PlacementSpec{}, ErrNoSymbol
	}
	var instruction string
	if len(o.Legs) > 0 {
		instruction = o.Legs[0].Instruction
	}
	spec := PlacementSpec{
		OrderType:         o.Type,
		Session:           "NORMAL",
		Duration:          o.Duration,
		OrderStrategyType: "SINGLE",
		Legs: []SpecLeg{{
			Instruction: instruction,
			Quantity:    o.Quantity,
			Instrument: Instrument{
				Symbol:    symbol,
				AssetType: DetectAssetType(symbol),
			},
		}},
	}
	if o.StopPrice != 0 {
		spec.StopPrice = o.StopPrice
	}
	if o.LimitPrice != 0 {
		spec.Price = o.LimitPrice
	}
	return spec, nil
}
