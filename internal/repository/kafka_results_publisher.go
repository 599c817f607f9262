package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	pkgkafka "github.com/RusaUB/finorax/pkg/kafka"
	"github.com/RusaUB/finorax/pkg/logger"
)

// LeaderboardEvent is the wire payload published after a round is ranked.
type LeaderboardEvent struct {
	RoundID     int64                     `json:"round_id"`
	Results     []models.AgentRoundResult `json:"results"`
	PublishedAt time.Time                 `json:"published_at"`
}

// KafkaResultsPublisher emits ranked leaderboards to a Kafka topic. Messages
// are keyed by round id so consumers see rescores in order.
type KafkaResultsPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	l        *logger.Logger
}

func NewKafkaResultsPublisher(producer *pkgkafka.Producer, topic string, l *logger.Logger) *KafkaResultsPublisher {
	return &KafkaResultsPublisher{producer: producer, topic: topic, l: l}
}

func (p *KafkaResultsPublisher) PublishLeaderboard(ctx context.Context, roundID int64, results []models.AgentRoundResult) error {
	event := LeaderboardEvent{
		RoundID:     roundID,
		Results:     results,
		PublishedAt: time.Now().UTC(),
	}
	key := []byte(strconv.FormatInt(roundID, 10))
	if err := p.producer.Publish(ctx, p.topic, key, event); err != nil {
		if p.l != nil {
			p.l.Error("leaderboard publish failed",
				logger.Int64("round", roundID),
				logger.Error(err),
			)
		}
		return err
	}
	if p.l != nil {
		p.l.Info("leaderboard published",
			logger.Int64("round", roundID),
			logger.Int("agents", len(results)),
			logger.String("topic", p.topic),
		)
	}
	return nil
}

func (p *KafkaResultsPublisher) Close() error {
	return p.producer.Close()
}

var _ repository.Publisher = (*KafkaResultsPublisher)(nil)

// NopPublisher discards leaderboards. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishLeaderboard(ctx context.Context, roundID int64, results []models.AgentRoundResult) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

var _ repository.Publisher = NopPublisher{}
