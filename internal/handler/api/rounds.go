package api

import (
	"errors"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/service/ratelimit"
	"github.com/RusaUB/finorax/internal/usecase"
	xhttp "github.com/RusaUB/finorax/pkg/http"
	xlogger "github.com/RusaUB/finorax/pkg/logger"
	"github.com/RusaUB/finorax/pkg/util"

	"github.com/labstack/echo/v4"
)

// RoundsHandler exposes the engine over HTTP: observation intake, round
// status, leaderboards and manual scoring triggers.
type RoundsHandler struct {
	logger     *xlogger.Logger
	rounds     *usecase.RoundManager
	intake     *usecase.ObservationIntake
	engine     *usecase.ScoringEngine
	aggregator *usecase.RankingAggregator

	rl           *ratelimit.Limiter
	rlCapacity   float64
	rlRefillRate float64
}

func NewRoundsHandler(
	logger *xlogger.Logger,
	rounds *usecase.RoundManager,
	intake *usecase.ObservationIntake,
	engine *usecase.ScoringEngine,
	aggregator *usecase.RankingAggregator,
) *RoundsHandler {
	return &RoundsHandler{
		logger:       logger,
		rounds:       rounds,
		intake:       intake,
		engine:       engine,
		aggregator:   aggregator,
		rl:           ratelimit.New(),
		rlCapacity:   10,
		rlRefillRate: 5,
	}
}

// SetRateLimit overrides the per-agent submission budget.
func (h *RoundsHandler) SetRateLimit(capacity, refillPerSec float64) {
	if capacity > 0 {
		h.rlCapacity = capacity
	}
	if refillPerSec > 0 {
		h.rlRefillRate = refillPerSec
	}
}

func (h *RoundsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/observations", h.SubmitObservation)
	g.GET("/leaderboard", h.Leaderboard)
	g.GET("/rounds/status", h.RoundStatus)
	g.POST("/rounds/score", h.ScoreRound)
}

func (h *RoundsHandler) SubmitObservation(c echo.Context) error {
	req := &models.SubmitObservationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.rl.Allow("submit:"+req.AgentID, h.rlCapacity, h.rlRefillRate) {
		h.logger.Warn("observation rate limited", xlogger.String("agent", req.AgentID))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("submission rate exceeded"))
	}

	ts, ok := util.ParseTime(req.Timestamp)
	if !ok {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_TIMESTAMP",
			Field:   "timestamp",
			Message: "timestamp must be RFC3339 or unix seconds",
		}})
	}

	o, err := h.intake.Submit(c.Request().Context(), req.AgentID, req.AssetID, ts, req.ZiScore)
	if err != nil {
		return h.domainError(c, "submit observation", err)
	}
	return xhttp.CreatedResponse(c, o)
}

func (h *RoundsHandler) Leaderboard(c echo.Context) error {
	req := &models.LeaderboardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	results, err := h.aggregator.Leaderboard(c.Request().Context(), req.RoundID)
	if err != nil {
		return h.domainError(c, "leaderboard", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, results, int64(len(results)))
}

type roundStatusResponse struct {
	RoundID   int64     `json:"round_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

func (h *RoundsHandler) RoundStatus(c echo.Context) error {
	req := &models.RoundStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	round, err := h.rounds.Round(req.RoundID)
	if err != nil {
		return h.domainError(c, "round status", err)
	}
	return xhttp.SuccessResponse(c, roundStatusResponse{
		RoundID:   round.ID,
		StartTime: round.StartTime,
		EndTime:   round.EndTime,
		Status:    string(round.Status),
	})
}

func (h *RoundsHandler) ScoreRound(c echo.Context) error {
	req := &models.ScoreRoundRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	eval, err := h.engine.ScoreRound(ctx, req.RoundID, req.Rescore)
	if err != nil {
		return h.domainError(c, "score round", err)
	}
	results, err := h.aggregator.PublishRound(ctx, req.RoundID)
	if err != nil {
		return h.domainError(c, "publish round", err)
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{
		"round_id":    req.RoundID,
		"scored":      len(eval.Scored),
		"unscorable":  len(eval.Unscorable),
		"leaderboard": results,
	})
}

// domainError maps engine errors onto HTTP statuses.
func (h *RoundsHandler) domainError(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case models.IsValidation(err):
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_INVALID",
			Message: err.Error(),
		}})
	case errors.Is(err, models.ErrOutOfSchedule):
		appErr = xhttp.UnprocessableError(err.Error())
	case errors.Is(err, models.ErrUnknownRound):
		appErr = xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrRoundClosed),
		errors.Is(err, models.ErrRoundNotClosed),
		errors.Is(err, models.ErrRoundAlreadyScored),
		errors.Is(err, models.ErrRoundNotScored),
		errors.Is(err, models.ErrDuplicateObservation),
		errors.Is(err, models.ErrScoringInFlight),
		errors.Is(err, models.ErrLockHeld):
		appErr = xhttp.ConflictError(err.Error())
	default:
		h.logger.Error(op+" failed", xlogger.Error(err))
		appErr = xhttp.InternalError("internal error").WithError(err)
	}
	return xhttp.AppErrorResponse(c, appErr)
}
