package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/interfaces/http/dto"
)

// AuditHandler serves read-only audit trail and anchor lookups
type AuditHandler struct {
	BaseHandler
	log     *audit.Log
	anchors *audit.AnchorService
}

// NewAuditHandler creates an AuditHandler
func NewAuditHandler(log *audit.Log, anchors *audit.AnchorService) *AuditHandler {
	return &AuditHandler{log: log, anchors: anchors}
}

// RegisterRoutes registers the audit routes
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	auditGroup := rg.Group("/audit")
	{
		auditGroup.GET("/:entity_type/:id/trail", h.Trail)
		auditGroup.GET("/:entity_type/:id/anchors/:event_type", h.Anchor)
	}
}

// Trail handles GET /audit/:entity_type/:id/trail
func (h *AuditHandler) Trail(c *gin.Context) {
	entityType, entityID, err := auditParams(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	events, err := h.log.Trail(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewAuditEventResponses(events))
}

// Anchor handles GET /audit/:entity_type/:id/anchors/:event_type
func (h *AuditHandler) Anchor(c *gin.Context) {
	entityType, entityID, err := auditParams(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	eventType := c.Param("event_type")
	record, err := h.anchors.GetAnchor(c.Request.Context(), entityType, entityID, eventType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if record == nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeNotFound, "Anchor not found"))
		return
	}
	h.Success(c, dto.NewAnchorResponse(record))
}

func auditParams(c *gin.Context) (string, uuid.UUID, error) {
	entityType := c.Param("entity_type")
	if entityType == "" {
		return "", uuid.Nil, shared.NewDomainError(shared.CodeInvalidInput, "Path parameter entity_type is required")
	}
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", uuid.Nil, shared.NewDomainError(shared.CodeInvalidInput, "Path parameter id must be a UUID")
	}
	return entityType, entityID, nil
}
