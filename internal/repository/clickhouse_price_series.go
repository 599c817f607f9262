package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	pkgch "github.com/RusaUB/finorax/pkg/clickhouse"
	"github.com/RusaUB/finorax/pkg/logger"
)

// CHPriceSeries serves prices from the asset_prices table and accepts feed
// ticks as a PriceSink.
type CHPriceSeries struct {
	db     *sql.DB
	l      *logger.Logger
	maxGap time.Duration // 0 disables staleness checks
}

func NewCHPriceSeries(ch *pkgch.Client, maxGap time.Duration) *CHPriceSeries {
	return &CHPriceSeries{db: ch.DB(), maxGap: maxGap}
}

// SetLogger injects a structured logger.
func (s *CHPriceSeries) SetLogger(l *logger.Logger) { s.l = l }

// PriceAt returns the latest tick at or before ts. A missing or stale tick
// is models.ErrPriceUnavailable; transport failures surface as-is so callers
// can retry them.
func (s *CHPriceSeries) PriceAt(ctx context.Context, assetID string, ts time.Time) (float64, error) {
	const q = `
        SELECT price, ts
        FROM finorax.asset_prices
        WHERE asset_id = ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT 1
    `
	var (
		price  float64
		tickTS time.Time
	)
	err := s.db.QueryRowContext(ctx, q, assetID, ts).Scan(&price, &tickTS)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s at %s", models.ErrPriceUnavailable, assetID, ts.UTC().Format(time.RFC3339))
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse price query error",
				logger.String("asset", assetID),
				logger.Error(err),
			)
		}
		return 0, fmt.Errorf("price at: %w", err)
	}
	if s.maxGap > 0 && ts.Sub(tickTS) > s.maxGap {
		return 0, fmt.Errorf("%w: %s stale at %s", models.ErrPriceUnavailable, assetID, ts.UTC().Format(time.RFC3339))
	}
	return price, nil
}

func (s *CHPriceSeries) StorePrice(ctx context.Context, assetID string, ts time.Time, price float64) error {
	const q = `
        INSERT INTO finorax.asset_prices (asset_id, ts, price)
        VALUES (?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q, assetID, ts.UTC(), price); err != nil {
		return fmt.Errorf("store price: %w", err)
	}
	return nil
}

var (
	_ repository.PriceSeries = (*CHPriceSeries)(nil)
	_ repository.PriceSink   = (*CHPriceSeries)(nil)
)
