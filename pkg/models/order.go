package models

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// OrderType selects how the venue prices the order.
type OrderType uint8

const (
	OrderMarket OrderType = iota
	OrderLimit
)

func (o OrderType) String() string {
	if o == OrderLimit {
		return "limit"
	}
	return "market"
}

// OrderFields are the plaintext trading parameters sealed inside an intent's
// encrypted payload. They exist in decrypted form only inside the executor,
// for the duration of a single venue submission.
type OrderFields struct {
	Pair        string    // trading pair identifier, e.g. "SUI/USDC"
	Side        Side      // buy or sell
	OrderType   OrderType // market or limit
	Quantity    int64     // base-asset quantity, 1e8 fixed-point
	Leverage    uint8     // 1 for spot
	SlippageBps uint16    // max slippage tolerance in basis points
	ExpiryMs    int64     // order-level expiry, epoch millis
}
