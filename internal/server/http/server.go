// Package httpserver exposes the entitlement, reward and migration API over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/auth"
	"github.com/and161185/earn-hire/internal/geo"
	"github.com/and161185/earn-hire/internal/localstore"
	"github.com/and161185/earn-hire/internal/service"
)

// Claimer runs a reward cash-out.
type Claimer interface {
	Claim(ctx context.Context, userID, wallet, signature string) (service.ClaimResult, error)
}

// WebhookHandler verifies and applies a payment provider event.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

// RegionResolver maps a client IP to a country.
type RegionResolver interface {
	Resolve(ctx context.Context, ip string) geo.Location
}

// Sessions returns the local store of an anonymous session.
type Sessions interface {
	Session(id string) localstore.Store
}

// Deps are the collaborators behind the routes. Claims, Billing and Geo may be
// nil; their routes then answer 503 (Geo: an explicit country is required).
type Deps struct {
	Credits   service.CreditLedger
	Rewards   service.RewardAccrual
	Migration service.MigrationReconciler
	Sessions  Sessions
	Claims    Claimer
	Billing   WebhookHandler
	Geo       RegionResolver
	Tokens    *auth.Tokens
	Log       *zap.Logger
	// Ping reports backend health for /healthz.
	Ping func(ctx context.Context) error
}

// Server holds handler state.
type Server struct {
	d Deps
}

// NewRouter builds the gin engine with logging, recovery, CORS and bearer auth.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{d: d}

	r := gin.New()
	r.Use(Recovery(d.Log), Logging(d.Log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", s.health)
	r.POST("/v1/billing/webhook", s.billingWebhook)
	r.PUT("/v1/anonymous/:session/:key", s.putAnonymous)

	v1 := r.Group("/v1")
	v1.Use(Auth(d.Tokens, d.Log))
	v1.GET("/credits", s.getCredits)
	v1.POST("/credits/insights/consume", s.consumeInsight)
	v1.POST("/credits/strategy/consume", s.consumeStrategy)
	v1.POST("/credits/warmth/consume", s.consumeWarmth)
	v1.POST("/region", s.setRegion)
	v1.POST("/rewards/points", s.addPoints)
	v1.GET("/rewards/status", s.rewardStatus)
	v1.POST("/rewards/claim", s.claim)
	v1.POST("/migration", s.migrate)
	return r
}

func (s *Server) health(c *gin.Context) {
	if s.d.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.d.Ping(ctx); err != nil {
			s.d.Log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
