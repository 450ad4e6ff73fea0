package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	appcommand "github.com/invest/backend/internal/application/command"
	appinvest "github.com/invest/backend/internal/application/invest"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/interfaces/http/dto"
)

// OfferingHandler serves the offering lifecycle routes
type OfferingHandler struct {
	BaseHandler
	service *appinvest.OfferingService
}

// NewOfferingHandler creates an OfferingHandler
func NewOfferingHandler(orchestrator *appcommand.Orchestrator, service *appinvest.OfferingService) *OfferingHandler {
	return &OfferingHandler{
		BaseHandler: NewBaseHandler(orchestrator),
		service:     service,
	}
}

// RegisterRoutes registers the offering routes
func (h *OfferingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	offerings := rg.Group("/offerings")
	{
		offerings.POST("", h.Create)
		offerings.GET("/:id", h.Get)
		offerings.POST("/:id/submit-review", h.SubmitForReview)
		offerings.POST("/:id/open", h.Open)
		offerings.POST("/:id/request-revision", h.RequestRevision)
		offerings.POST("/:id/resubmit", h.Resubmit)
		offerings.POST("/:id/pause", h.Pause)
		offerings.POST("/:id/resume", h.Resume)
		offerings.POST("/:id/close", h.Close)
		offerings.POST("/:id/cancel", h.Cancel)
		offerings.POST("/:id/enter-servicing", h.EnterServicing)
		offerings.POST("/:id/exit", h.Exit)
	}
}

// Create handles POST /offerings
func (h *OfferingHandler) Create(c *gin.Context) {
	var req dto.CreateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	target, err := dto.ParseMoney(req.TargetAmount, req.Currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/offerings", req, false, func(ctx context.Context) (any, error) {
		offering, err := h.service.Create(ctx, appinvest.CreateOfferingInput{
			Actor:     act,
			Reference: req.Reference,
			Name:      req.Name,
			Target:    target,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewOfferingResponse(offering), nil
	})
}

// Get handles GET /offerings/:id
func (h *OfferingHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	offering, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewOfferingResponse(offering))
}

// Open handles POST /offerings/:id/open
func (h *OfferingHandler) Open(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.OpenOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/offerings/:id/open", commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		offering, err := h.service.Open(ctx, appinvest.OpenOfferingInput{
			Actor:          act,
			OfferingID:     id,
			ReviewApproved: req.ReviewApproved,
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewOfferingResponse(offering), nil
	})
}

// Close handles POST /offerings/:id/close
func (h *OfferingHandler) Close(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.CloseOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/offerings/:id/close", commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		offering, err := h.service.Close(ctx, appinvest.CloseOfferingInput{
			Actor:      act,
			OfferingID: id,
			Allocation: req.Allocation,
			Notes:      req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewOfferingResponse(offering), nil
	})
}

// SubmitForReview handles POST /offerings/:id/submit-review
func (h *OfferingHandler) SubmitForReview(c *gin.Context) {
	h.transition(c, "submit-review", h.service.SubmitForReview)
}

// RequestRevision handles POST /offerings/:id/request-revision
func (h *OfferingHandler) RequestRevision(c *gin.Context) {
	h.transition(c, "request-revision", h.service.RequestRevision)
}

// Resubmit handles POST /offerings/:id/resubmit
func (h *OfferingHandler) Resubmit(c *gin.Context) {
	h.transition(c, "resubmit", h.service.Resubmit)
}

// Pause handles POST /offerings/:id/pause
func (h *OfferingHandler) Pause(c *gin.Context) {
	h.transition(c, "pause", h.service.Pause)
}

// Resume handles POST /offerings/:id/resume
func (h *OfferingHandler) Resume(c *gin.Context) {
	h.transition(c, "resume", h.service.Resume)
}

// Cancel handles POST /offerings/:id/cancel
func (h *OfferingHandler) Cancel(c *gin.Context) {
	h.transition(c, "cancel", h.service.Cancel)
}

// EnterServicing handles POST /offerings/:id/enter-servicing
func (h *OfferingHandler) EnterServicing(c *gin.Context) {
	h.transition(c, "enter-servicing", h.service.EnterServicing)
}

// Exit handles POST /offerings/:id/exit
func (h *OfferingHandler) Exit(c *gin.Context) {
	h.transition(c, "exit", h.service.Exit)
}

type offeringTransition func(ctx context.Context, in appinvest.TransitionOfferingInput) (*invest.Offering, error)

func (h *OfferingHandler) transition(c *gin.Context, verb string, fn offeringTransition) {
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

	h.RunCommand(c, "POST /api/v1/offerings/:id/"+verb, commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		offering, err := fn(ctx, appinvest.TransitionOfferingInput{
			Actor:      act,
			OfferingID: id,
			Notes:      req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewOfferingResponse(offering), nil
	})
}
