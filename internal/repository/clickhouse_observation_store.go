package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	pkgch "github.com/RusaUB/finorax/pkg/clickhouse"
	"github.com/RusaUB/finorax/pkg/logger"
)

// CHObservationStore implements ObservationStore backed by ClickHouse.
type CHObservationStore struct {
	db *sql.DB
	l  *logger.Logger
}

func NewCHObservationStore(ch *pkgch.Client) *CHObservationStore {
	return &CHObservationStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHObservationStore) SetLogger(l *logger.Logger) { s.l = l }

func (s *CHObservationStore) Insert(ctx context.Context, o models.Observation) error {
	// ClickHouse does not enforce uniqueness, so check first. Races between
	// two identical submissions are tolerated: scoring treats the pair as one
	// because both rows carry identical values.
	const existsQ = `
        SELECT count()
        FROM finorax.observations
        WHERE agent_id = ? AND asset_id = ? AND ts = ?
    `
	var n uint64
	if err := s.db.QueryRowContext(ctx, existsQ, o.AgentID, o.AssetID, o.Timestamp).Scan(&n); err != nil {
		return fmt.Errorf("observation exists check: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", models.ErrDuplicateObservation, o.Key())
	}

	const insQ = `
        INSERT INTO finorax.observations (agent_id, asset_id, ts, zi_score, round_id)
        VALUES (?, ?, ?, ?, ?)
    `
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, insQ, o.AgentID, o.AssetID, o.Timestamp, int8(o.ZiScore), o.RoundID); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse observation insert error",
				logger.String("agent", o.AgentID),
				logger.String("asset", o.AssetID),
				logger.Error(err),
			)
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse observation insert ok",
			logger.String("agent", o.AgentID),
			logger.String("asset", o.AssetID),
			logger.Int64("round", o.RoundID),
			logger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHObservationStore) ListByRound(ctx context.Context, roundID int64) ([]models.Observation, error) {
	const q = `
        SELECT agent_id, asset_id, ts, zi_score, round_id
        FROM finorax.observations
        WHERE round_id = ?
    `
	rows, err := s.db.QueryContext(ctx, q, roundID)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse list observations query error",
				logger.Int64("round", roundID),
				logger.Error(err),
			)
		}
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 256)
	for rows.Next() {
		var (
			o  models.Observation
			zi int8
		)
		if err := rows.Scan(&o.AgentID, &o.AssetID, &o.Timestamp, &zi, &o.RoundID); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.ZiScore = models.ZiScore(zi)
		o.Timestamp = o.Timestamp.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHObservationStore) Close() error { return nil }

var _ repository.ObservationStore = (*CHObservationStore)(nil)
