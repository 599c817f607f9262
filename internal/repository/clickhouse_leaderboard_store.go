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

// CHLeaderboardStore persists rounds and ranked scores in ClickHouse.
// Both tables are ReplacingMergeTree so a rescore overwrites in place.
type CHLeaderboardStore struct {
	db *sql.DB
	l  *logger.Logger
}

func NewCHLeaderboardStore(ch *pkgch.Client) *CHLeaderboardStore {
	return &CHLeaderboardStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHLeaderboardStore) SetLogger(l *logger.Logger) { s.l = l }

func (s *CHLeaderboardStore) SaveRound(ctx context.Context, r models.Round) error {
	const q = `
        INSERT INTO finorax.rounds (id, start_time, end_time, status)
        VALUES (?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.StartTime, r.EndTime, string(r.Status)); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save round error",
				logger.Int64("round", r.ID),
				logger.Error(err),
			)
		}
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

func (s *CHLeaderboardStore) SaveResults(ctx context.Context, roundID int64, results []models.AgentRoundResult) error {
	start := time.Now()

	// Lightweight delete first: a rescore can drop agents from the board,
	// and ReplacingMergeTree only overwrites rows that are written again.
	const del = `DELETE FROM finorax.round_scores WHERE round_id = ?`
	if _, err := s.db.ExecContext(ctx, del, roundID); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse clear results error",
				logger.Int64("round", roundID),
				logger.Error(err),
			)
		}
		return fmt.Errorf("clear scores: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	const q = `
        INSERT INTO finorax.round_scores (round_id, agent_id, total_score, rank, observations_count)
        VALUES (?, ?, ?, ?, ?)
    `
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, roundID, r.AgentID, r.TotalScore, uint32(r.Rank), uint32(r.Observations)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert score: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.l != nil {
		s.l.Info("clickhouse save results ok",
			logger.Int64("round", roundID),
			logger.Int("rows", len(results)),
			logger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHLeaderboardStore) GetResults(ctx context.Context, roundID int64) ([]models.AgentRoundResult, error) {
	// FINAL collapses superseded versions after a rescore.
	const q = `
        SELECT agent_id, total_score, rank, observations_count
        FROM finorax.round_scores FINAL
        WHERE round_id = ?
        ORDER BY rank ASC, agent_id ASC
    `
	rows, err := s.db.QueryContext(ctx, q, roundID)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get results query error",
				logger.Int64("round", roundID),
				logger.Error(err),
			)
		}
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	out := make([]models.AgentRoundResult, 0, 64)
	for rows.Next() {
		var (
			r    models.AgentRoundResult
			rank uint32
			obs  uint32
		)
		if err := rows.Scan(&r.AgentID, &r.TotalScore, &rank, &obs); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		r.RoundID = roundID
		r.Rank = int(rank)
		r.Observations = int(obs)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *CHLeaderboardStore) Close() error { return nil }

var _ repository.LeaderboardStore = (*CHLeaderboardStore)(nil)
