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

// MilestoneHandler serves the milestone verification routes
type MilestoneHandler struct {
	BaseHandler
	service *appinvest.MilestoneService
}

// NewMilestoneHandler creates a MilestoneHandler
func NewMilestoneHandler(orchestrator *appcommand.Orchestrator, service *appinvest.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{
		BaseHandler: NewBaseHandler(orchestrator),
		service:     service,
	}
}

// RegisterRoutes registers the milestone routes
func (h *MilestoneHandler) RegisterRoutes(rg *gin.RouterGroup) {
	milestones := rg.Group("/milestones")
	{
		milestones.POST("", h.Create)
		milestones.GET("/:id", h.Get)
		milestones.POST("/:id/submit-evidence", h.SubmitEvidence)
		milestones.POST("/:id/review", h.StartReview)
		milestones.POST("/:id/verify", h.Verify)
		milestones.POST("/:id/reject", h.Reject)
	}
}

// Create handles POST /milestones
func (h *MilestoneHandler) Create(c *gin.Context) {
	var req dto.CreateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	offeringID, err := uuid.Parse(req.OfferingID)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/milestones", req, false, func(ctx context.Context) (any, error) {
		milestone, err := h.service.Create(ctx, appinvest.CreateMilestoneInput{
			Actor:      act,
			OfferingID: offeringID,
			Title:      req.Title,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewMilestoneResponse(milestone), nil
	})
}

// Get handles GET /milestones/:id
func (h *MilestoneHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	milestone, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMilestoneResponse(milestone))
}

// Verify handles POST /milestones/:id/verify
func (h *MilestoneHandler) Verify(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.VerifyMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/milestones/:id/verify", commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		milestone, err := h.service.Verify(ctx, appinvest.VerifyMilestoneInput{
			Actor:               act,
			MilestoneID:         id,
			ReviewItemsComplete: req.ReviewItemsComplete,
			Notes:               req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewMilestoneResponse(milestone), nil
	})
}

// SubmitEvidence handles POST /milestones/:id/submit-evidence
func (h *MilestoneHandler) SubmitEvidence(c *gin.Context) {
	h.transition(c, "submit-evidence", h.service.SubmitEvidence)
}

// StartReview handles POST /milestones/:id/review
func (h *MilestoneHandler) StartReview(c *gin.Context) {
	h.transition(c, "review", h.service.StartReview)
}

// Reject handles POST /milestones/:id/reject
func (h *MilestoneHandler) Reject(c *gin.Context) {
	h.transition(c, "reject", h.service.Reject)
}

type milestoneTransition func(ctx context.Context, in appinvest.TransitionMilestoneInput) (*invest.Milestone, error)

func (h *MilestoneHandler) transition(c *gin.Context, verb string, fn milestoneTransition) {
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

	h.RunCommand(c, "POST /api/v1/milestones/:id/"+verb, commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		milestone, err := fn(ctx, appinvest.TransitionMilestoneInput{
			Actor:       act,
			MilestoneID: id,
			Notes:       req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewMilestoneResponse(milestone), nil
	})
}
