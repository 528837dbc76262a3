package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// OPTIONS - Shared by Reconciler, Aggregator, RefundDesk and Accounts
// =============================================================================

// Option configures an engine.
type Option func(*engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithAuditLog sets the audit sink. Without one, audit entries are only
// logged.
func WithAuditLog(a AuditLog) Option {
	return func(e *engine) { e.audit = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *engine) {
		if now != nil {
			e.now = now
		}
	}
}

type engine struct {
	store  TxStore
	audit  AuditLog
	logger *zap.Logger
	now    func() time.Time
}

func newEngine(store TxStore, opts []Option) engine {
	e := engine{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// inTx runs fn in one store transaction. Business errors pass through
// untouched; anything else is logged with its cause and replaced by a
// generic PersistenceError.
func (e *engine) inTx(ctx context.Context, op string, fn func(Store) error, fields ...zap.Field) error {
	err := e.store.WithTx(ctx, fn)
	if err == nil || isBusinessError(err) {
		return err
	}
	return e.persistenceFailure(op, err, fields...)
}

func (e *engine) persistenceFailure(op string, err error, fields ...zap.Field) error {
	e.logger.Error("store operation failed, rolled back",
		append(fields, zap.String("op", op), zap.Error(err))...)
	return &PersistenceError{Op: op, Cause: err}
}

// =============================================================================
// AUDIT - Best effort, always after commit
// =============================================================================

func (e *engine) record(ctx context.Context, actor Actor, action AuditAction, resource, resourceID, message string, payload map[string]string) {
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  e.now().UTC(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Message:    message,
		Payload:    payload,
	}

	e.logger.Info(message,
		zap.String("action", string(action)),
		zap.String("actor", string(actor.ID)),
		zap.String("resource", resource),
		zap.String("resource_id", resourceID),
	)

	if e.audit == nil {
		return
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		e.logger.Warn("audit append failed",
			zap.String("action", string(action)),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}
