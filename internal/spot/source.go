// Package spot exposes the live market price collaborator. The spot_prices
// table is fed by the market-data side of the platform; this package only
// reads it, caching briefly so offer math does not hammer the database.
package spot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/cache"
	"github.com/jtj60/dorado-exchange-sub003/internal/config"
	"github.com/jtj60/dorado-exchange-sub003/internal/database"
	"github.com/jtj60/dorado-exchange-sub003/internal/entity"
)

var sourceTracer = otel.Tracer("github.com/jtj60/dorado-exchange-sub003/spot")

const cacheKey = "spots:live"

// ErrNoPrices is returned when the live price table has no rows for a metal
// the caller needs.
var ErrNoPrices = errors.New("no live spot prices")

// Source yields the current bid/ask per metal.
type Source interface {
	Current(ctx context.Context) ([]*entity.SpotPrice, error)
}

// Module provides the spot price source to Fx.
var Module = fx.Provide(NewSource)

// DBSource reads live quotes from the relational store with a short cache.
type DBSource struct {
	reader   *bun.DB
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewSource wires the database-backed price source.
func NewSource(conns *database.Connections, store cache.Store, cfg config.Config, logger *zap.Logger) Source {
	return &DBSource{
		reader:   conns.Reader,
		cache:    store,
		cacheTTL: cfg.Spot.CacheTTL,
		logger:   logger,
	}
}

// Current returns one quote per supported metal, preferring the cache.
func (s *DBSource) Current(ctx context.Context) ([]*entity.SpotPrice, error) {
	ctx, span := sourceTracer.Start(ctx, "SpotSource.Current")
	defer span.End()

	if prices, err := s.fromCache(ctx); err == nil {
		return prices, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("spot cache read failed", zap.Error(err))
	}

	var prices []*entity.SpotPrice
	if err := s.reader.NewSelect().Model(&prices).Order("metal ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load spot prices: %w", err)
	}
	if len(prices) == 0 {
		return nil, ErrNoPrices
	}

	if err := s.storeInCache(ctx, prices); err != nil {
		s.logger.Warn("spot cache write failed", zap.Error(err))
	}
	return prices, nil
}

func (s *DBSource) fromCache(ctx context.Context) ([]*entity.SpotPrice, error) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, cache.ErrCacheMiss
	}
	raw, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	var prices []*entity.SpotPrice
	if err := json.Unmarshal(raw, &prices); err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, cache.ErrCacheMiss
	}
	return prices, nil
}

func (s *DBSource) storeInCache(ctx context.Context, prices []*entity.SpotPrice) error {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	raw, err := json.Marshal(prices)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, cacheKey, raw, s.cacheTTL)
}

// ByMetal indexes quotes for snapshot capture and pricing.
func ByMetal(prices []*entity.SpotPrice) map[entity.Metal]*entity.SpotPrice {
	out := make(map[entity.Metal]*entity.SpotPrice, len(prices))
	for _, p := range prices {
		out[p.Metal] = p
	}
	return out
}
