// Package command implements the idempotent command orchestrator. Every
// mutating operation in the system runs through Orchestrator.Run, which
// provides exactly-once-observable execution: a retried command with the
// same idempotency key replays the stored response instead of executing
// its effects again.
package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/invest/backend/internal/domain/command"
	"github.com/invest/backend/internal/domain/shared"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Transactor runs a unit of work inside a database transaction. Nested
// calls join the ambient transaction of the outer unit.
type Transactor interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReplayCache fronts the durable idempotency store with a TTL cache of
// stored responses. Implementations live in infrastructure/cache.
type ReplayCache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, key string, body json.RawMessage, ttl time.Duration) error
}

// Spec describes one command submission.
type Spec struct {
	// Key is the caller-supplied idempotency key. Nil means the caller did
	// not send one; financial commands reject that, others run unprotected.
	Key *string

	// UserID identifies the acting user. Keys are scoped per user so two
	// users reusing the same key never collide.
	UserID uuid.UUID

	// Route identifies the operation, e.g. "POST /api/v1/subscriptions/:id/pay".
	// Keys are scoped per route.
	Route string

	// Payload is the request body used for the canonical request hash.
	Payload any

	// Financial marks commands that move money. These require a key.
	Financial bool

	// Execute performs the command inside the transaction the orchestrator
	// opens. Its return value becomes the stored response body.
	Execute func(ctx context.Context) (any, error)
}

// cacheEnvelope is the replay cache value. Carrying the request hash lets
// a cache hit still detect key reuse with a different payload.
type cacheEnvelope struct {
	RequestHash string          `json:"request_hash"`
	Body        json.RawMessage `json:"body"`
}

// Orchestrator coordinates idempotency lookup, transactional execution and
// response storage for mutating commands.
type Orchestrator struct {
	records  command.Repository
	tx       Transactor
	cache    ReplayCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. cache may be nil to disable the
// replay cache; the database record is always the source of truth.
func NewOrchestrator(records command.Repository, tx Transactor, cache ReplayCache, cacheTTL time.Duration, logger *zap.Logger) *Orchestrator {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Orchestrator{
		records:  records,
		tx:       tx,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Run executes the command described by spec with idempotency protection.
//
// With a key, the first submission executes inside a transaction and stores
// the response in the same transaction, so the record exists if and only if
// the effects committed. A later submission with the same (key, user, route)
// and the same payload replays the stored response without re-executing;
// the same key with a different payload is rejected with CONFLICT.
//
// Without a key, financial commands fail the idempotency_key_present guard
// and everything else executes unprotected.
func (o *Orchestrator) Run(ctx context.Context, spec Spec) (json.RawMessage, error) {
	if spec.Route == "" || spec.Execute == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Command route and execute function are required")
	}
	if spec.UserID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Command user is required")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "command", "run",
		attribute.String(telemetry.SpanAttrRoute, spec.Route),
		attribute.String(telemetry.SpanAttrUserID, spec.UserID.String()),
	)
	defer span.End()

	if spec.Key == nil {
		if spec.Financial {
			err := statemachine.NewGuardError(statemachine.GuardIdempotencyKeyPresent)
			telemetry.RecordError(span, err)
			return nil, err
		}
		return o.runUnprotected(ctx, spec)
	}

	key := *spec.Key
	if key == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Idempotency key must not be empty")
	}

	requestHash, err := shared.CanonicalHash(spec.Payload)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Request payload is not serializable: "+err.Error())
	}

	if body, ok := o.replayFromCache(ctx, spec, key, requestHash); ok {
		telemetry.AddEvent(span, "replayed", attribute.Bool("cache_hit", true))
		return body, nil
	}

	existing, err := o.records.Find(ctx, key, spec.UserID, spec.Route)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if existing != nil {
		body, err := o.replay(spec, existing, requestHash)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		telemetry.AddEvent(span, "replayed", attribute.Bool("cache_hit", false))
		o.storeInCache(ctx, spec, key, requestHash, body)
		return body, nil
	}

	body, err := o.executeProtected(ctx, spec, key, requestHash)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	o.storeInCache(ctx, spec, key, requestHash, body)
	return body, nil
}

// runUnprotected executes a keyless non-financial command. Effects are
// still transactional but nothing is stored for replay.
func (o *Orchestrator) runUnprotected(ctx context.Context, spec Spec) (json.RawMessage, error) {
	var body json.RawMessage
	err := o.tx.Execute(ctx, func(txCtx context.Context) error {
		result, err := spec.Execute(txCtx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return shared.NewDomainError(shared.CodeInvalidInput, "Command response is not serializable: "+err.Error())
		}
		body = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("Command executed without idempotency key",
		zap.String("route", spec.Route),
		zap.String("user_id", spec.UserID.String()),
	)
	return body, nil
}

// executeProtected runs the command and inserts the idempotency record in
// one transaction. When a concurrent submission wins the insert race, this
// side rolls back its own effects and replays the winner's response.
func (o *Orchestrator) executeProtected(ctx context.Context, spec Spec, key, requestHash string) (json.RawMessage, error) {
	var body json.RawMessage
	err := o.tx.Execute(ctx, func(txCtx context.Context) error {
		result, err := spec.Execute(txCtx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return shared.NewDomainError(shared.CodeInvalidInput, "Command response is not serializable: "+err.Error())
		}
		record := command.NewIdempotencyRecord(key, spec.UserID, spec.Route, requestHash, raw)
		if err := o.records.Create(txCtx, record); err != nil {
			return err
		}
		body = raw
		return nil
	})
	if err == nil {
		o.logger.Info("Command executed",
			zap.String("route", spec.Route),
			zap.String("user_id", spec.UserID.String()),
		)
		return body, nil
	}
	if !errors.Is(err, shared.ErrAlreadyExists) {
		return nil, err
	}

	// Lost the insert race. Our transaction rolled back, so no effects of
	// this submission survive; serve the winner's stored response.
	o.logger.Info("Concurrent duplicate command detected, replaying winner",
		zap.String("route", spec.Route),
		zap.String("user_id", spec.UserID.String()),
	)
	winner, findErr := o.records.Find(ctx, key, spec.UserID, spec.Route)
	if findErr != nil {
		return nil, findErr
	}
	if winner == nil {
		return nil, shared.NewDomainError(shared.CodeConflict, "A concurrent command with this idempotency key did not complete")
	}
	return o.replay(spec, winner, requestHash)
}

// replay validates the stored record against the incoming request hash and
// returns the stored response.
func (o *Orchestrator) replay(spec Spec, record *command.IdempotencyRecord, requestHash string) (json.RawMessage, error) {
	if record.RequestHash != requestHash {
		return nil, shared.NewDomainError(shared.CodeConflict, "Idempotency key was already used with a different request payload")
	}
	o.logger.Info("Command replayed from stored response",
		zap.String("route", spec.Route),
		zap.String("user_id", spec.UserID.String()),
	)
	return json.RawMessage(record.ResponseBody), nil
}

func (o *Orchestrator) replayFromCache(ctx context.Context, spec Spec, key, requestHash string) (json.RawMessage, bool) {
	if o.cache == nil {
		return nil, false
	}
	raw, ok, err := o.cache.Get(ctx, replayCacheKey(key, spec.UserID, spec.Route))
	if err != nil {
		o.logger.Warn("Replay cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var envelope cacheEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}
	if envelope.RequestHash != requestHash {
		// Payload mismatch is a hard conflict; let the database path decide
		// so the cache can never override the durable record.
		return nil, false
	}
	return envelope.Body, true
}

func (o *Orchestrator) storeInCache(ctx context.Context, spec Spec, key, requestHash string, body json.RawMessage) {
	if o.cache == nil {
		return
	}
	raw, err := json.Marshal(cacheEnvelope{RequestHash: requestHash, Body: body})
	if err != nil {
		return
	}
	if err := o.cache.Put(ctx, replayCacheKey(key, spec.UserID, spec.Route), raw, o.cacheTTL); err != nil {
		o.logger.Warn("Replay cache write failed", zap.Error(err))
	}
}

// replayCacheKey hashes the idempotency scope so caller-supplied keys never
// leak into cache key space.
func replayCacheKey(key string, userID uuid.UUID, route string) string {
	sum := sha256.Sum256([]byte(key + "\x00" + userID.String() + "\x00" + route))
	return hex.EncodeToString(sum[:])
}
