package models

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderRequest opens (or, with Exit set, flattens) a position on Side.
type OrderRequest struct {
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Qty    int       `json:"qty"`
	Type   OrderType `json:"type"`
	// Price is the limit price, or the reference price for market orders.
	Price float64 `json:"price,omitempty"`
	Exit  bool    `json:"exit,omitempty"`
}

// Buy reports whether the order buys: long entries and short exits.
func (r OrderRequest) Buy() bool {
	return (r.Side == SideLong) != r.Exit
}

// OrderAck is the broker's acknowledgement of a placement attempt.
type OrderAck struct {
	Success   bool    `json:"success"`
	OrderID   string  `json:"order_id,omitempty"`
	FillPrice float64 `json:"fill_price,omitempty"`
	Message   string  `json:"message,omitempty"`
}
