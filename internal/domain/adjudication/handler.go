package adjudication

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/vitalsuite/claims/internal/platform/auth"
)

// Handler exposes the adjudication engines over HTTP.
type Handler struct {
	auto    *AutoEngine
	manual  *ManualEngine
	results ResultRepository
	claims  ClaimRepository
}

func NewHandler(auto *AutoEngine, manual *ManualEngine, results ResultRepository, claims ClaimRepository) *Handler {
	return &Handler{auto: auto, manual: manual, results: results, claims: claims}
}

// RegisterRoutes mounts the adjudication endpoints on the given group. The
// group is expected to already carry the JWT middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/claims/:id/adjudicate", h.adjudicateClaim, auth.RequirePermission(auth.PermAdjudicate))
	g.POST("/claims/adjudicate-batch", h.adjudicateBatch, auth.RequirePermission(auth.PermAdjudicate))
	g.POST("/claims/:id/review", h.reviewClaim, auth.RequirePermission(auth.PermAdjudicate))
	g.POST("/claims/review-bulk", h.reviewBulk, auth.RequirePermission(auth.PermAdjudicate))
	g.GET("/claims/:id/result", h.activeResult)
	g.POST("/service-requests/:id/adjudicate", h.adjudicateServiceRequest, auth.RequirePermission(auth.PermAdjudicate))
	g.GET("/reviewers/:id/quality", h.reviewerQuality, auth.RequirePermission(auth.PermAdjudicate))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientAuthority):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrNotProcessable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidDecision):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) adjudicateClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	res, err := h.auto.Process(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type batchRequest struct {
	ClaimIDs []uuid.UUID `json:"claim_ids"`
	// Limit pulls NEW claims from the queue when no explicit IDs are
	// given.
	Limit int `json:"limit"`
}

func (h *Handler) adjudicateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ids := req.ClaimIDs
	if len(ids) == 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = 100
		}
		var err error
		ids, err = h.claims.ListIDsByStatus(c.Request().Context(), ClaimNew, limit)
		if err != nil {
			return httpError(err)
		}
	}
	summary := h.auto.ProcessBatch(c.Request().Context(), ids)
	return c.JSON(http.StatusOK, summary)
}

type reviewRequest struct {
	Action          ReviewAction     `json:"action"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Reason          string           `json:"reason"`
	Notes           string           `json:"notes,omitempty"`
	PaymentMethod   PaymentMethod    `json:"payment_method,omitempty"`
	WithheldPercent decimal.Decimal  `json:"withheld_percent,omitempty"`
	ActiveResultID  uuid.UUID        `json:"active_result_id"`
}

func (r reviewRequest) decision() Decision {
	return Decision{
		Action:          r.Action,
		Amount:          r.Amount,
		Reason:          r.Reason,
		Notes:           r.Notes,
		PaymentMethod:   r.PaymentMethod,
		WithheldPercent: r.WithheldPercent,
		ActiveResultID:  r.ActiveResultID,
	}
}

func reviewerFromContext(c echo.Context) Reviewer {
	ctx := c.Request().Context()
	return Reviewer{
		ID:          auth.UserIDFromContext(ctx),
		Name:        auth.UserNameFromContext(ctx),
		Permissions: auth.PermissionsFromContext(ctx),
	}
}

func (h *Handler) reviewClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.manual.Review(c.Request().Context(), id, reviewerFromContext(c), req.decision())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type bulkReviewRequest struct {
	ClaimIDs []uuid.UUID `json:"claim_ids"`
	reviewRequest
}

func (h *Handler) reviewBulk(c echo.Context) error {
	var req bulkReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.ClaimIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "claim_ids is required")
	}
	summary := h.manual.ReviewBatch(c.Request().Context(), req.ClaimIDs, reviewerFromContext(c), req.decision())
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) activeResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	res, err := h.results.GetActive(c.Request().Context(), KindClaim, id)
	if err != nil {
		return httpError(err)
	}
	if res == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active result")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) adjudicateServiceRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid service request id")
	}
	res, err := h.auto.ProcessServiceRequest(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) reviewerQuality(c echo.Context) error {
	reviewerID := c.Param("id")
	windowDays := 30
	if v := c.QueryParam("window_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid window_days")
		}
		windowDays = n
	}
	report, err := h.manual.ValidateReviewerQuality(c.Request().Context(), reviewerID, windowDays)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}
