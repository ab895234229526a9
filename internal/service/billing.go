package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/errs"
	"github.com/and161185/earn-hire/internal/model"
)

// PlanGranter applies purchases to the credit ledger.
type PlanGranter interface {
	SetPlan(ctx context.Context, plan model.Plan, userID string) error
	AddCredits(ctx context.Context, product model.Product, userID string) error
}

// BillingService turns completed Stripe checkouts into plan changes and boosts.
type BillingService struct {
	ledger        PlanGranter
	webhookSecret string
	log           *zap.Logger
}

// NewBillingService constructs the service. log may be nil.
func NewBillingService(ledger PlanGranter, webhookSecret string, log *zap.Logger) *BillingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BillingService{ledger: ledger, webhookSecret: webhookSecret, log: log}
}

// Fulfil grants a product: plan products overwrite the pools, boosts add to them.
func (s *BillingService) Fulfil(ctx context.Context, userID string, product model.Product) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	if plan, ok := product.Plan(); ok {
		return s.ledger.SetPlan(ctx, plan, userID)
	}
	return s.ledger.AddCredits(ctx, product, userID)
}

// HandleWebhook verifies a Stripe event and fulfils checkout.session.completed.
// Bad signatures and payloads map to errs.ErrInvalidArgument, unknown products to
// errs.ErrUnknownPlan; anything else is a store failure the sender should retry.
// Other event types are ignored.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: signature verification failed: %v", errs.ErrInvalidArgument, err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: invalid session payload: %v", errs.ErrInvalidArgument, err)
		}
		return s.completeCheckout(ctx, &sess)
	default:
		s.log.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *BillingService) completeCheckout(ctx context.Context, sess *stripe.CheckoutSession) error {
	log := s.log.With(zap.String("session_id", sess.ID), zap.String("user_id", sess.ClientReferenceID))
	if sess.ClientReferenceID == "" {
		log.Warn("checkout session without client_reference_id")
		return fmt.Errorf("%w: missing client_reference_id", errs.ErrInvalidArgument)
	}
	product, err := model.ParseProduct(sess.Metadata["planType"])
	if err != nil {
		log.Warn("checkout session with invalid plan type", zap.String("plan_type", sess.Metadata["planType"]))
		return err
	}
	if err := s.Fulfil(ctx, sess.ClientReferenceID, product); err != nil {
		log.Error("fulfil checkout", zap.Error(err))
		return fmt.Errorf("fulfil %s: %w", product, err)
	}
	log.Info("checkout fulfilled", zap.String("product", string(product)))
	return nil
}
