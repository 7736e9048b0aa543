package query

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/streamflix/partwise/internal/core/errors"
)

// RegisterRoutes registers all query API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/aggregates/daily", s.HandleDailyAggregates)
	r.GET("/v1/events", s.HandleQueryEvents)
	r.GET("/v1/partitions", s.HandleListPartitions)
	r.POST("/v1/partitions/ensure", s.HandleEnsurePartitions)
}

// HandleDailyAggregates handles GET /v1/aggregates/daily
// Query parameters: from, to (dates, inclusive)
func (s *Service) HandleDailyAggregates(c *gin.Context) {
	var q struct {
		From time.Time `form:"from" binding:"required" time_format:"2006-01-02"`
		To   time.Time `form:"to" binding:"required" time_format:"2006-01-02"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		writeQueryError(c, err)
		return
	}

	resp, err := s.QueryDailyAggregates(c.Request.Context(), q.From, q.To)
	if err != nil {
		writeServiceError(c, err, "Failed to query daily aggregates")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleQueryEvents handles GET /v1/events
// Query parameters: from, to (RFC3339), country (optional), limit (optional)
func (s *Service) HandleQueryEvents(c *gin.Context) {
	var q struct {
		From    time.Time `form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		To      time.Time `form:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		Country string    `form:"country"`
		Limit   int       `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		writeQueryError(c, err)
		return
	}

	resp, err := s.QueryEvents(c.Request.Context(), q.From, q.To, q.Country, q.Limit)
	if err != nil {
		writeServiceError(c, err, "Failed to query events")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListPartitions handles GET /v1/partitions
func (s *Service) HandleListPartitions(c *gin.Context) {
	resp, err := s.ListPartitions(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "Failed to list partitions")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleEnsurePartitions handles POST /v1/partitions/ensure
// Body: {"from": ..., "to": ...} (RFC3339)
func (s *Service) HandleEnsurePartitions(c *gin.Context) {
	var req EnsureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid request body",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.EnsurePartitions(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidQueryError,
				Message:   "Invalid ensure request",
				Details:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpProvisionFailedError,
			Message:   "Failed to ensure partitions",
			Details:   err.Error(),
		})
		return
	}

	// Partial failure is reported per month with 207, not hidden behind 500.
	status := http.StatusOK
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

func writeQueryError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidQueryError,
		Message:   "Invalid query parameters",
		Details:   err.Error(),
	})
}

func writeServiceError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrInvalidQuery) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   msg,
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   msg,
		Details:   err.Error(),
	})
}
