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
)

// TrancheHandler serves the tranche release routes. Release and Reverse
// are financial: the orchestrator rejects them without an idempotency key.
type TrancheHandler struct {
	BaseHandler
	service *appinvest.TrancheService
}

// NewTrancheHandler creates a TrancheHandler
func NewTrancheHandler(orchestrator *appcommand.Orchestrator, service *appinvest.TrancheService) *TrancheHandler {
	return &TrancheHandler{
		BaseHandler: NewBaseHandler(orchestrator),
		service:     service,
	}
}

// RegisterRoutes registers the tranche routes
func (h *TrancheHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tranches := rg.Group("/tranches")
	{
		tranches.POST("", h.Create)
		tranches.GET("/:id", h.Get)
		tranches.POST("/:id/mark-eligible", h.MarkEligible)
		tranches.POST("/:id/release", h.Release)
		tranches.POST("/:id/fail", h.Fail)
		tranches.POST("/:id/reverse", h.Reverse)
	}
}

// Create handles POST /tranches
func (h *TrancheHandler) Create(c *gin.Context) {
	var req dto.CreateTrancheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	offeringID, err := uuid.Parse(req.OfferingID)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	milestoneID, err := uuid.Parse(req.MilestoneID)
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

	h.RunCommand(c, "POST /api/v1/tranches", req, false, func(ctx context.Context) (any, error) {
		tranche, err := h.service.Create(ctx, appinvest.CreateTrancheInput{
			Actor:       act,
			Reference:   req.Reference,
			OfferingID:  offeringID,
			MilestoneID: milestoneID,
			Amount:      amount,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewTrancheResponse(tranche), nil
	})
}

// Get handles GET /tranches/:id
func (h *TrancheHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	tranche, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewTrancheResponse(tranche))
}

// Release handles POST /tranches/:id/release
func (h *TrancheHandler) Release(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.ReleaseTrancheRequest
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

	h.RunCommand(c, "POST /api/v1/tranches/:id/release", commandPayload(id, req), true, func(ctx context.Context) (any, error) {
		tranche, err := h.service.Release(ctx, appinvest.ReleaseTrancheInput{
			Actor:          act,
			TrancheID:      id,
			PayoutApproved: req.PayoutApproved,
			IdempotencyKey: key,
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewTrancheResponse(tranche), nil
	})
}

// MarkEligible handles POST /tranches/:id/mark-eligible
func (h *TrancheHandler) MarkEligible(c *gin.Context) {
	h.transition(c, "mark-eligible", h.service.MarkEligible)
}

// Fail handles POST /tranches/:id/fail
func (h *TrancheHandler) Fail(c *gin.Context) {
	h.transition(c, "fail", h.service.Fail)
}

// Reverse handles POST /tranches/:id/reverse
func (h *TrancheHandler) Reverse(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.TransitionRequest
	// an empty body means a reversal without notes
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

	h.RunCommand(c, "POST /api/v1/tranches/:id/reverse", commandPayload(id, req), true, func(ctx context.Context) (any, error) {
		tranche, err := h.service.Reverse(ctx, appinvest.ReverseTrancheInput{
			Actor:          act,
			TrancheID:      id,
			IdempotencyKey: key,
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewTrancheResponse(tranche), nil
	})
}

type trancheTransition func(ctx context.Context, in appinvest.TransitionTrancheInput) (*invest.Tranche, error)

func (h *TrancheHandler) transition(c *gin.Context, verb string, fn trancheTransition) {
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

	h.RunCommand(c, "POST /api/v1/tranches/:id/"+verb, commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		tranche, err := fn(ctx, appinvest.TransitionTrancheInput{
			Actor:     act,
			TrancheID: id,
			Notes:     req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewTrancheResponse(tranche), nil
	})
}
