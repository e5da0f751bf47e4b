package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"aspire/internal/cache"
	"aspire/internal/db"
	"aspire/internal/feature"
	"aspire/internal/metrics"
	"aspire/internal/store"

	"github.com/jmoiron/sqlx"
)

// CostRegistry prices features. Lookups go cache, catalog, then the built-in list, so
// GetCost always has an answer.
type CostRegistry struct {
	txRunner db.TxRunner
	costs    FeatureCostStore
	cache    cache.Cache
	logger   *slog.Logger
	ttl      time.Duration
}

func NewCostRegistry(txRunner db.TxRunner, costs FeatureCostStore, costCache cache.Cache, logger *slog.Logger, ttl time.Duration) *CostRegistry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CostRegistry{txRunner: txRunner, costs: costs, cache: costCache, logger: logger, ttl: ttl}
}

func (r *CostRegistry) GetCost(ctx context.Context, t feature.Type) int64 {
	fallback, known := feature.Default(t)
	if !known {
		r.logger.Warn("cost requested for unpriced feature", "feature", t.String(), "charge", feature.DefaultCharge)
		metrics.CostFallbacks.WithLabelValues("unknown").Inc()
		return feature.DefaultCharge
	}

	key := cache.FeatureCostKey(t.String())
	if cached, ok, err := r.cache.GetInt(ctx, key); err != nil {
		r.logger.Warn("cost cache read failed", "feature", t.String(), "error", err)
	} else if ok {
		return cached
	}

	row, err := r.costs.Get(ctx, t.String())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r.logger.Warn("feature missing from cost catalog, using default", "feature", t.String(), "cost", fallback.TokenCost)
		metrics.CostFallbacks.WithLabelValues(t.String()).Inc()
		return fallback.TokenCost
	case err != nil:
		r.logger.Warn("cost catalog unavailable, using default", "feature", t.String(), "cost", fallback.TokenCost, "error", err)
		metrics.CostFallbacks.WithLabelValues(t.String()).Inc()
		return fallback.TokenCost
	case row.TokenCost <= 0:
		r.logger.Warn("non-positive catalog cost, using default", "feature", t.String(), "catalog_cost", row.TokenCost)
		metrics.CostFallbacks.WithLabelValues(t.String()).Inc()
		return fallback.TokenCost
	}
	if err := r.cache.SetInt(ctx, key, row.TokenCost, r.ttl); err != nil {
		r.logger.Warn("cost cache write failed", "feature", t.String(), "error", err)
	}
	return row.TokenCost
}

// List returns the effective price of every priced feature.
func (r *CostRegistry) List(ctx context.Context) []feature.Price {
	prices := feature.Defaults()
	rows, err := r.costs.List(ctx)
	if err != nil {
		r.logger.Warn("cost catalog unavailable, listing defaults", "error", err)
		return prices
	}
	catalog := make(map[feature.Type]store.FeatureCost, len(rows))
	for _, row := range rows {
		catalog[feature.Type(row.FeatureName)] = row
	}
	for i, price := range prices {
		row, ok := catalog[price.Feature]
		if !ok || row.TokenCost <= 0 {
			continue
		}
		prices[i].TokenCost = row.TokenCost
		if row.Description != "" {
			prices[i].Description = row.Description
		}
	}
	return prices
}

// Seed upserts the built-in price list and drops cached prices. Running it again
// changes nothing.
func (r *CostRegistry) Seed(ctx context.Context) (int, error) {
	defaults := feature.Defaults()
	err := r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, price := range defaults {
			if err := r.costs.Upsert(ctx, tx, store.FeatureCostInput{
				FeatureName: price.Feature.String(),
				TokenCost:   price.TokenCost,
				Description: price.Description,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(defaults))
	for _, price := range defaults {
		keys = append(keys, cache.FeatureCostKey(price.Feature.String()))
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("cost cache invalidation failed", "error", err)
	}
	return len(defaults), nil
}
