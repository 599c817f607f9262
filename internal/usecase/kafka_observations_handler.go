package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/pkg/logger"
	"github.com/RusaUB/finorax/pkg/util"
)

// observationEvent is the wire format consumed from the observations topic.
// It mirrors the HTTP submission payload.
type observationEvent struct {
	AgentID   string `json:"agent_id"`
	AssetID   string `json:"asset_id"`
	Timestamp string `json:"timestamp"`
	ZiScore   int    `json:"zi_score"`
}

// ObservationsHandler consumes observation submissions from Kafka and feeds
// them through the same intake path as HTTP.
//
// Bad messages are logged and dropped rather than returned as errors:
// redelivering a malformed or late observation can never make it valid.
type ObservationsHandler struct {
	topic  string
	intake *ObservationIntake
	log    *logger.Logger
}

func NewObservationsHandler(topic string, intake *ObservationIntake, log *logger.Logger) *ObservationsHandler {
	return &ObservationsHandler{topic: topic, intake: intake, log: log}
}

func (h *ObservationsHandler) Topic() string { return h.topic }

func (h *ObservationsHandler) Handle(ctx context.Context, value []byte) error {
	var ev observationEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		h.drop("malformed observation event", err, value)
		return nil
	}

	ts, ok := util.ParseTime(ev.Timestamp)
	if !ok {
		h.drop("bad observation timestamp", errors.New("unparseable timestamp: "+ev.Timestamp), value)
		return nil
	}

	_, err := h.intake.Submit(ctx, ev.AgentID, ev.AssetID, ts, ev.ZiScore)
	switch {
	case err == nil:
		return nil
	case models.IsValidation(err),
		errors.Is(err, models.ErrOutOfSchedule),
		errors.Is(err, models.ErrRoundClosed),
		errors.Is(err, models.ErrDuplicateObservation):
		h.drop("observation rejected", err, value)
		return nil
	default:
		// Storage errors are worth a redelivery.
		return err
	}
}

func (h *ObservationsHandler) drop(msg string, err error, value []byte) {
	if h.log != nil {
		h.log.Warn(msg,
			logger.Error(err),
			logger.Int("bytes", len(value)),
		)
	}
}
