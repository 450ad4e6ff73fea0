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

// ApplicationHandler serves the application lifecycle routes
type ApplicationHandler struct {
	BaseHandler
	service *appinvest.ApplicationService
}

// NewApplicationHandler creates an ApplicationHandler
func NewApplicationHandler(orchestrator *appcommand.Orchestrator, service *appinvest.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{
		BaseHandler: NewBaseHandler(orchestrator),
		service:     service,
	}
}

// RegisterRoutes registers the application routes
func (h *ApplicationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	apps := rg.Group("/applications")
	{
		apps.POST("", h.Create)
		apps.GET("/:id", h.Get)
		apps.POST("/:id/submit", h.Submit)
		apps.POST("/:id/review", h.StartReview)
		apps.POST("/:id/request-info", h.RequestInfo)
		apps.POST("/:id/resubmit", h.Resubmit)
		apps.POST("/:id/approve", h.Approve)
		apps.POST("/:id/reject", h.Reject)
		apps.POST("/:id/withdraw", h.Withdraw)
	}
}

// Create handles POST /applications
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	applicantID, err := uuid.Parse(req.ApplicantID)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/applications", req, false, func(ctx context.Context) (any, error) {
		app, err := h.service.Create(ctx, appinvest.CreateApplicationInput{
			Actor:       act,
			Reference:   req.Reference,
			ApplicantID: applicantID,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewApplicationResponse(app), nil
	})
}

// Get handles GET /applications/:id
func (h *ApplicationHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	app, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewApplicationResponse(app))
}

// Submit handles POST /applications/:id/submit
func (h *ApplicationHandler) Submit(c *gin.Context) {
	h.transition(c, "submit", h.service.Submit)
}

// StartReview handles POST /applications/:id/review
func (h *ApplicationHandler) StartReview(c *gin.Context) {
	h.transition(c, "review", h.service.StartReview)
}

// RequestInfo handles POST /applications/:id/request-info
func (h *ApplicationHandler) RequestInfo(c *gin.Context) {
	h.transition(c, "request-info", h.service.RequestInfo)
}

// Resubmit handles POST /applications/:id/resubmit
func (h *ApplicationHandler) Resubmit(c *gin.Context) {
	h.transition(c, "resubmit", h.service.Resubmit)
}

// Reject handles POST /applications/:id/reject
func (h *ApplicationHandler) Reject(c *gin.Context) {
	h.transition(c, "reject", h.service.Reject)
}

// Withdraw handles POST /applications/:id/withdraw
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	h.transition(c, "withdraw", h.service.Withdraw)
}

// Approve handles POST /applications/:id/approve
func (h *ApplicationHandler) Approve(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err)
		return
	}
	var req dto.ApproveApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.RunCommand(c, "POST /api/v1/applications/:id/approve", commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		app, err := h.service.Approve(ctx, appinvest.ApproveApplicationInput{
			Actor:                   act,
			ApplicationID:           id,
			TasksComplete:           req.TasksComplete,
			EvidenceVerified:        req.EvidenceVerified,
			LegalChecklistSatisfied: req.LegalChecklistSatisfied,
			Notes:                   req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewApplicationResponse(app), nil
	})
}

type applicationTransition func(ctx context.Context, in appinvest.TransitionApplicationInput) (*invest.Application, error)

func (h *ApplicationHandler) transition(c *gin.Context, verb string, fn applicationTransition) {
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

	h.RunCommand(c, "POST /api/v1/applications/:id/"+verb, commandPayload(id, req), false, func(ctx context.Context) (any, error) {
		app, err := fn(ctx, appinvest.TransitionApplicationInput{
			Actor:         act,
			ApplicationID: id,
			Notes:         req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return dto.NewApplicationResponse(app), nil
	})
}

// commandPayload binds the target entity into the request hash so reusing a
// key against a different entity is a payload mismatch, not a replay.
func commandPayload(id uuid.UUID, body any) map[string]any {
	return map[string]any{"id": id.String(), "body": body}
}
