// Package invest implements the workflow services on top of the command
// core. Every mutating method expects to run inside the transaction the
// command orchestrator opened; state changes, ledger postings and audit
// events of one command commit or abort together.
package invest

import (
	"context"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/invest"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ApplicationService drives the investment application lifecycle
type ApplicationService struct {
	apps     invest.ApplicationRepository
	registry *statemachine.Registry
	auditLog *audit.Log
	logger   *zap.Logger
}

// NewApplicationService creates an ApplicationService
func NewApplicationService(
	apps invest.ApplicationRepository,
	registry *statemachine.Registry,
	auditLog *audit.Log,
	logger *zap.Logger,
) *ApplicationService {
	return &ApplicationService{
		apps:     apps,
		registry: registry,
		auditLog: auditLog,
		logger:   logger,
	}
}

// CreateApplicationInput carries the fields for a new draft application
type CreateApplicationInput struct {
	Actor       audit.Actor
	Reference   string
	ApplicantID uuid.UUID
}

// Create opens a draft application
func (s *ApplicationService) Create(ctx context.Context, in CreateApplicationInput) (*invest.Application, error) {
	app, err := invest.NewApplication(in.Reference, in.ApplicantID)
	if err != nil {
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if shared.IsCode(err, "ALREADY_EXISTS") {
			return nil, shared.NewDomainError(shared.CodeConflict, "An application with this reference already exists")
		}
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityApplication), app.ID, "ApplicationCreated", ""); err != nil {
		return nil, err
	}
	return app, nil
}

// TransitionApplicationInput moves an application along a registered edge
type TransitionApplicationInput struct {
	Actor         audit.Actor
	ApplicationID uuid.UUID
	Notes         string
}

// ApproveApplicationInput carries the approve transition's guard inputs
type ApproveApplicationInput struct {
	Actor                   audit.Actor
	ApplicationID           uuid.UUID
	TasksComplete           bool
	EvidenceVerified        bool
	LegalChecklistSatisfied bool
	Notes                   string
}

// Submit moves a draft application into review intake
func (s *ApplicationService) Submit(ctx context.Context, in TransitionApplicationInput) (*invest.Application, error) {
	return s.transition(ctx, in, statemachine.ApplicationSubmitted, "ApplicationSubmitted", nil)
}

// StartReview picks up a submitted application for review
func (s *ApplicationService) StartReview(ctx context.Context, in TransitionApplicationInput) (*invest.Application, error) {
	return s.transition(ctx, in, statemachine.ApplicationInReview, "ApplicationReviewStarted", nil)
}

// RequestInfo sends an application back to the applicant for more detail
func (s *ApplicationService) RequestInfo(ctx context.Context, in TransitionApplicationInput) (*invest.Application, error) {
	return s.transition(ctx, in, statemachine.ApplicationNeedsInfo, "ApplicationInfoRequested", nil)
}

// Resubmit returns an application from needs_info to the review queue
func (s *ApplicationService) Resubmit(ctx context.Context, in TransitionApplicationInput) (*invest.Application, error) {
	return s.transition(ctx, in, statemachine.ApplicationSubmitted, "ApplicationResubmitted", nil)
}

// Approve decides an application positively. All three review guards must
// hold or the transition fails with PRECONDITION_FAILED naming the guard.
func (s *ApplicationService) Approve(ctx context.Context, in ApproveApplicationInput) (*invest.Application, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "application", "approve",
		attribute.String(telemetry.SpanAttrEntityID, in.ApplicationID.String()),
	)
	defer span.End()

	guards := statemachine.Guards{
		statemachine.GuardTasksComplete:           in.TasksComplete,
		statemachine.GuardEvidenceVerified:        in.EvidenceVerified,
		statemachine.GuardLegalChecklistSatisfied: in.LegalChecklistSatisfied,
	}
	app, err := s.transition(ctx, TransitionApplicationInput{
		Actor:         in.Actor,
		ApplicationID: in.ApplicationID,
		Notes:         in.Notes,
	}, statemachine.ApplicationApproved, "ApplicationApproved", guards)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return app, nil
}

// Reject decides an application negatively
func (s *ApplicationService) Reject(ctx context.Context, in TransitionApplicationInput) (*invest.Application, error) {
	return s.transition(ctx, in, statemachine.ApplicationRejected, "ApplicationRejected", nil)
}

// Withdraw retires an active application at the applicant's request
func (s *ApplicationService) Withdraw(ctx context.Context, in TransitionApplicationInput) (*invest.Application, error) {
	return s.transition(ctx, in, statemachine.ApplicationWithdrawn, "ApplicationWithdrawn", nil)
}

// Get returns an application by ID
func (s *ApplicationService) Get(ctx context.Context, id uuid.UUID) (*invest.Application, error) {
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Application not found")
	}
	return app, nil
}

func (s *ApplicationService) transition(
	ctx context.Context,
	in TransitionApplicationInput,
	to statemachine.State,
	action string,
	guards statemachine.Guards,
) (*invest.Application, error) {
	app, err := s.Get(ctx, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	from := app.State
	if err := s.registry.AssertTransition(statemachine.EntityApplication, from, to, guards); err != nil {
		return nil, err
	}
	app.MoveTo(to)
	if err := s.apps.Save(ctx, app); err != nil {
		return nil, err
	}
	if err := s.auditLog.Append(ctx, in.Actor, string(statemachine.EntityApplication), app.ID, action, in.Notes); err != nil {
		return nil, err
	}
	s.logger.Info("Application transitioned",
		zap.String("application_id", app.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return app, nil
}
