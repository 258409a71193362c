package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// SpotPrice is the live market quote for one metal, per troy ounce.
type SpotPrice struct {
	bun.BaseModel `bun:"table:spot_prices,alias:sp"`

	ID              int64     `bun:",pk,autoincrement"`
	Metal           Metal     `bun:"metal"`
	BidSpot         float64   `bun:"bid_spot"`
	AskSpot         float64   `bun:"ask_spot"`
	ScrapPercentage float64   `bun:"scrap_percentage"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero"`
}

// OrderSpot is the per-order, per-metal frozen copy of the spot price the
// customer's offer is computed against. Rows exist only while spots are locked
// and are owned exclusively by the order.
type OrderSpot struct {
	bun.BaseModel `bun:"table:order_spots,alias:os"`

	ID              int64   `bun:",pk,autoincrement"`
	OrderID         int64   `bun:"order_id"`
	Metal           Metal   `bun:"metal"`
	BidSpot         float64 `bun:"bid_spot"`
	AskSpot         float64 `bun:"ask_spot"`
	ScrapPercentage float64 `bun:"scrap_percentage"`
}

// RefinerSpot is the per-order, per-metal frozen copy of the spot price the
// operator is settled against by the refiner, captured alongside OrderSpot.
type RefinerSpot struct {
	bun.BaseModel `bun:"table:refiner_spots,alias:rs"`

	ID              int64   `bun:",pk,autoincrement"`
	OrderID         int64   `bun:"order_id"`
	Metal           Metal   `bun:"metal"`
	BidSpot         float64 `bun:"bid_spot"`
	AskSpot         float64 `bun:"ask_spot"`
	ScrapPercentage float64 `bun:"scrap_percentage"`
}
