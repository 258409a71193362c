package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/database"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
)

// Module wires the seeder for CLI use.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// SpotPrices seeds a live price row per metal if one is missing. The values
// are development placeholders, not market data.
func (s *Seeder) SpotPrices(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []entity.SpotPrice{
		{Metal: entity.MetalGold, BidSpot: 2480.50, AskSpot: 2482.10, ScrapPercentage: 0.95, UpdatedAt: now},
		{Metal: entity.MetalSilver, BidSpot: 29.10, AskSpot: 29.25, ScrapPercentage: 0.90, UpdatedAt: now},
		{Metal: entity.MetalPlatinum, BidSpot: 955.00, AskSpot: 958.40, ScrapPercentage: 0.92, UpdatedAt: now},
		{Metal: entity.MetalPalladium, BidSpot: 930.75, AskSpot: 934.20, ScrapPercentage: 0.92, UpdatedAt: now},
	}

	for _, sample := range samples {
		price := sample
		_, err := s.db.NewInsert().Model(&price).
			On("CONFLICT (metal) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded spot prices", zap.Int("count", len(samples)))
	}
	return nil
}
