package httpserver

import (
	"context"
	"io"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/localstore"
	"github.com/and161185/earn-hire/internal/model"
)

func (s *Server) getCredits(c *gin.Context) {
	ctx, uid := c.Request.Context(), userID(c)
	counts, err := s.d.Credits.RemainingCounts(ctx, uid)
	if err != nil {
		s.writeError(c, "remaining counts", err)
		return
	}
	rec, err := s.d.Credits.GetOrCreate(ctx, uid)
	if err != nil {
		s.writeError(c, "get entitlements", err)
		return
	}
	cards, err := s.d.Credits.GetWarmthCardsPerSearch(ctx, uid)
	if err != nil {
		s.writeError(c, "warmth cards", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":                 rec.Plan,
		"region":               rec.Region,
		"remaining":            counts,
		"warmthCardsPerSearch": cards,
	})
}

func (s *Server) consume(c *gin.Context, op string, fn func(ctx context.Context, userID string) (bool, error)) {
	ok, err := fn(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if !ok {
		c.JSON(http.StatusPaymentRequired, gin.H{"consumed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"consumed": true})
}

func (s *Server) consumeInsight(c *gin.Context) {
	s.consume(c, "consume insight", s.d.Credits.IncrementInsightUsage)
}

func (s *Server) consumeStrategy(c *gin.Context) {
	s.consume(c, "consume strategy", s.d.Credits.IncrementGreaterStrategyUsage)
}

func (s *Server) consumeWarmth(c *gin.Context) {
	s.consume(c, "consume warmth", s.d.Credits.DecrementWarmthSearchUsage)
}

type regionRequest struct {
	Country string `json:"country"`
}

func (s *Server) setRegion(c *gin.Context) {
	var req regionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	country := req.Country
	if country == "" {
		if s.d.Geo == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "country required"})
			return
		}
		country = s.d.Geo.Resolve(c.Request.Context(), c.ClientIP()).CountryCode
	}
	ctx, uid := c.Request.Context(), userID(c)
	if err := s.d.Credits.SetRegion(ctx, country, uid); err != nil {
		s.writeError(c, "set region", err)
		return
	}
	rec, err := s.d.Credits.GetOrCreate(ctx, uid)
	if err != nil {
		s.writeError(c, "get entitlements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": rec.Region, "rewardsAllowed": model.RegionAllowed(rec.Region)})
}

type pointsRequest struct {
	JobID         string `json:"jobId" binding:"required"`
	Authenticated *bool  `json:"authenticated"`
}

func (s *Server) addPoints(c *gin.Context) {
	var req pointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobId required"})
		return
	}
	authed := req.Authenticated == nil || *req.Authenticated
	awarded, err := s.d.Rewards.AddPoints(c.Request.Context(), req.JobID, userID(c), authed)
	if err != nil {
		s.writeError(c, "add points", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"awarded": awarded})
}

func (s *Server) rewardStatus(c *gin.Context) {
	st, err := s.d.Rewards.GetStatus(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, "reward status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               st,
		"requiredTimeSeconds":  int64(st.RequiredTime.Seconds()),
		"timeRemainingSeconds": int64(st.TimeRemaining.Seconds()),
	})
}

type claimRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Signature string `json:"signature"`
}

func (s *Server) claim(c *gin.Context) {
	if s.d.Claims == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "claims not configured"})
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet required"})
		return
	}
	res, err := s.d.Claims.Claim(c.Request.Context(), userID(c), req.Wallet, req.Signature)
	if err != nil {
		s.writeError(c, "claim", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type migrationRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// migrate never fails the session: errors are logged and reported as migrated=false
// so the client retries on its next sign-in.
func (s *Server) migrate(c *gin.Context) {
	var req migrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId required"})
		return
	}
	uid := userID(c)
	res, err := s.d.Migration.Run(c.Request.Context(), uid, s.d.Sessions.Session(req.SessionID))
	if err != nil {
		s.d.Log.Warn("migration failed", zap.String("user_id", uid), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"migrated": false})
		return
	}
	c.JSON(http.StatusOK, res)
}

const maxAnonymousValue = 256 << 10

// putAnonymous stores one pre-login artifact for an anonymous session.
func (s *Server) putAnonymous(c *gin.Context) {
	key := c.Param("key")
	if !slices.Contains(localstore.ArtifactKeys, key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown key"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAnonymousValue+1))
	if err != nil || len(body) > maxAnonymousValue {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := s.d.Sessions.Session(c.Param("session")).Set(c.Request.Context(), key, string(body)); err != nil {
		s.writeError(c, "store anonymous data", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) billingWebhook(c *gin.Context) {
	if s.d.Billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
		return
	}
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := s.d.Billing.HandleWebhook(c.Request.Context(), body, c.GetHeader("Stripe-Signature")); err != nil {
		s.writeError(c, "billing webhook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
