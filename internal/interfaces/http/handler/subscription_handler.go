package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appcommand "github.com/invest/backend/internal/application/command"
	appinvest "github.com/invest/backend/internal/application/invest"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/interfaces/http/dto"
	"github.com/invest/backend/internal/interfaces/http/middleware"
)

// SubscriptionHandler serves the subscription lifecycle routes. Pay and
// refund are financial: the orchestrator rejects them without an
// idempotency key.
type SubscriptionHandler struct {
	BaseHandler
	service *appinvest.SubscriptionService
}

// NewSubscriptionHandler creates a SubscriptionHandler
func NewSubscriptionHandler(orchestrator *appcommand.Orchestrator, service *appinvest.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		BaseHandler: NewBaseHandler(orchestrator),
		service:     service,
	}
}

// RegisterRoutes registers the subscription routes
func (h *SubscriptionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	subs := rg.Group("/subscriptions")
	{
		subs.POST("", h.Create)
		subs.GET("/:id", h.Get)
		subs.POST("/:id/commit", h.Commit)
		subs.POST("/:id/request-payment", h.RequestPayment)
		subs.POST("/:id/pay", h.MarkPaid)
		subs.POST("/:id/confirm-allocation", h.ConfirmAllocation)
		subs.POST("/:id/redeem", h.Redeem)
		subs.POST("/:id/cancel", h.Cancel)
		subs.POST("/:id/refund", h.Refund)
	}
}

// Create handles POST /subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	offeringID, err := uuid.Parse(req.OfferingID)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	investorID, err := uuid.Parse(req.InvestorID)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	amount, err := dto.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/subscriptions", req, false, func(ctx context.Context) (any, error) {
		sub, err := h.service.Create(ctx, appinvest.CreateSubscriptionInput{
			Actor:      act,
			Reference:  req.Reference,
			OfferingID: offeringID,
			InvestorID: investorID,
			Amount:     amount,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewSubscriptionResponse(sub), nil
	})
}

// Get handles GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	sub, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewSubscriptionResponse(sub))
}

// MarkPaid handles POST /subscriptions/:id/pay
func (h *SubscriptionHandler) MarkPaid(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	key := commandKeyOrEmpty(c)

	h.RunCommand(c, "POST /api/v1/subscriptions/:id/pay", commandPayload(id, req), true, func(ctx context.Context) (any, error) {
		sub, err := h.service.MarkPaid(ctx, appinvest.MarkPaidInput{
			Actor:           act,
			SubscriptionID:  id,
			PaymentReceived: req.PaymentReceived,
			IdempotencyKey:  key,
			Notes:           req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewSubscriptionResponse(sub), nil
	})
}

// Refund handles POST /subscriptions/:id/refund
func (h *SubscriptionHandler) Refund(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	key := commandKeyOrEmpty(c)

	h.RunCommand(c, "POST /api/v1/subscriptions/:id/refund", commandPayload(id, req), true, func(ctx context.Context) (any, error) {
		sub, err := h.service.Refund(ctx, appinvest.RefundInput{
			Actor:          act,
			SubscriptionID: id,
			IdempotencyKey: key,
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewSubscriptionResponse(sub), nil
	})
}

// Commit handles POST /subscriptions/:id/commit
func (h *SubscriptionHandler) Commit(c *gin.Context) {
	h.transition(c, "commit", h.service.Commit)
}

// RequestPayment handles POST /subscriptions/:id/request-payment
func (h *SubscriptionHandler) RequestPayment(c *gin.Context) {
	h.transition(c, "request-payment", h.service.RequestPayment)
}

// ConfirmAllocation handles POST /subscriptions/:id/confirm-allocation
func (h *SubscriptionHandler) ConfirmAllocation(c *gin.Context) {
	h.transition(c, "confirm-allocation", h.service.ConfirmAllocation)
}

// Redeem handles POST /subscriptions/:id/redeem
func (h *SubscriptionHandler) Redeem(c *gin.Context) {
	h.transition(c, "redeem", h.service.Redeem)
}

// Cancel handles POST /subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	h.transition(c, "cancel", h.service.Cancel)
}

type subscriptionTransition func(ctx context.Context, in appinvest.TransitionSubscriptionInput) (*invest.Subscription, error)

func (h *SubscriptionHandler) transition(c *gin.Context, verb string, fn subscriptionTransition) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.TransitionRequest
	// an empty body means a transition without notes
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/subscriptions/:id/"+verb, commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		sub, err := fn(ctx, appinvest.TransitionSubscriptionInput{
			Actor:          act,
			SubscriptionID: id,
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewSubscriptionResponse(sub), nil
	})
}

// commandKeyOrEmpty returns the request's idempotency key for seeding
// ledger entry keys. The orchestrator enforces presence for financial
// routes before Execute runs.
func commandKeyOrEmpty(c *gin.Context) string {
	if key := middleware.GetIdempotencyKey(c); key != nil {
		return *key
	}
	return ""
}
