package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/errs"
)

// writeError maps service errors onto status codes. Internal details are logged, not returned.
func (s *Server) writeError(c *gin.Context, op string, err error) {
	var rl *errs.RateLimitError
	switch {
	case errors.As(err, &rl):
		secs := int(math.Ceil(rl.CooldownRemaining.Seconds()))
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":           "rate limited",
			"needsCaptcha":    rl.NeedsCaptcha,
			"cooldownSeconds": secs,
		})
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrUnknownPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, errs.ErrNotEligible):
		c.JSON(http.StatusForbidden, gin.H{"error": "not eligible for cash-out"})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errs.ErrClaimFailed):
		s.d.Log.Warn(op, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "claim failed"})
	default:
		s.d.Log.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
