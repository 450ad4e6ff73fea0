// Package handler implements the gin HTTP handlers. Every mutating route
// funnels through the command orchestrator; handlers only parse, delegate
// and translate errors.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appcommand "github.com/invest/backend/internal/application/command"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/interfaces/http/dto"
	"github.com/invest/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	orchestrator *appcommand.Orchestrator
}

// NewBaseHandler creates a BaseHandler around the orchestrator
func NewBaseHandler(orchestrator *appcommand.Orchestrator) BaseHandler {
	return BaseHandler{orchestrator: orchestrator}
}

// actor resolves the acting user from the request headers
func actor(c *gin.Context) (audit.Actor, error) {
	id := middleware.GetUserID(c)
	if id == uuid.Nil {
		return audit.Actor{}, shared.NewDomainError(dto.ErrCodeUnauthorized, "X-User-ID header is required")
	}
	return audit.Actor{ID: id, Role: middleware.GetUserRole(c)}, nil
}

// pathID parses the :id path parameter
func pathID(c *gin.Context) (uuid.UUID, error) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		return uuid.Nil, shared.NewDomainError(shared.CodeInvalidInput, "Path parameter id must be a UUID")
	}
	return uuid.Parse(req.ID)
}

// RunCommand executes a mutating route through the orchestrator and writes
// the stored (or replayed) response body.
func (h *BaseHandler) RunCommand(c *gin.Context, route string, payload any, financial bool, execute func(ctx context.Context) (any, error)) {
	act, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	body, err := h.orchestrator.Run(c.Request.Context(), appcommand.Spec{
		Key:       middleware.GetIdempotencyKey(c),
		UserID:    act.ID,
		Route:     route,
		Payload:   payload,
		Financial: financial,
		Execute:   execute,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(body))
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// BadRequest sends a 400 response for binding failures
func (h *BaseHandler) BadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, err.Error(), middleware.GetRequestID(c)))
}

// HandleError converts domain errors to HTTP responses. Guard failures
// carry the failed guard's name so clients can render what is missing.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	var guardErr *statemachine.GuardError
	if errors.As(err, &guardErr) {
		c.JSON(http.StatusUnprocessableEntity, dto.NewGuardErrorResponse(
			shared.CodePreconditionFailed, guardErr.Error(), string(guardErr.Guard), requestID,
		))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(dto.GetHTTPStatus(domainErr.Code), dto.NewErrorResponse(domainErr.Code, domainErr.Message, requestID))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, "An unexpected error occurred", requestID))
}
