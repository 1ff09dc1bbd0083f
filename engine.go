package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agilepm-dev/authcore/jwt"

	internalaudit "github.com/agilepm-dev/authcore/internal/audit"
	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// Engine is the security core. All methods are safe for concurrent use after
// [Builder.Build].
type Engine struct {
	config    Config
	directory UserDirectory
	hasher    Hasher
	mailer    Mailer

	tokens *jwt.Manager
	totp   *totpEngine

	devices     *stores.DeviceStore
	refresh     *stores.RefreshStore
	resets      *stores.ResetStore
	backupCodes *stores.BackupCodeStore
	challenges  *stores.ChallengeStore
	auditTrail  *stores.AuditStore

	dispatcher *internalaudit.Dispatcher
	metrics    *internalmetrics.Metrics
}

// Close drains the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit entries the async sink dispatcher has
// dropped. The redis trail is written synchronously and never drops.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// emitAudit appends one entry to the redis trail and forwards it to the
// optional application sink. Trail write failures are swallowed: audit must
// never turn a completed security operation into an error after the fact.
func (e *Engine) emitAudit(ctx context.Context, action, entityType, entityID, detail string, outcome Outcome) {
	if e == nil {
		return
	}

	entry := AuditEntry{
		Timestamp:  time.Now().UTC(),
		Actor:      actorFromContext(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		IPAddress:  clientIPFromContext(ctx),
		Outcome:    outcome,
	}

	_ = e.auditTrail.Append(ctx, entry)
	e.dispatcher.Emit(ctx, entry)
}

// deviceFingerprint derives the advisory device identifier from the client
// IP plus declared browser and OS strings. Deterministic name-based UUID;
// shared NATs and spoofed headers can collide, so this is a risk signal,
// never an authorization primitive.
func deviceFingerprint(info ClientInfo) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(info.IP+info.Browser+info.OS)).String()
}

// mapStoreErr lifts internal store sentinels into the public taxonomy.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, stores.ErrUnavailable), errors.Is(err, stores.ErrConflict):
		return ErrStoreUnavailable
	default:
		return err
	}
}

// DeleteAccount removes the principal and cascades every dependent record
// the security core owns: devices, refresh tokens, reset tokens, and backup
// codes. The principal aggregate owns these lifecycles; nothing survives.
func (e *Engine) DeleteAccount(ctx context.Context, principalID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	p, err := e.directory.GetByID(ctx, principalID)
	if err != nil {
		return err
	}

	if err := e.refresh.DeleteForPrincipal(ctx, p.ID); err != nil {
		return ErrStoreUnavailable
	}
	if err := e.backupCodes.DeleteForPrincipal(ctx, p.ID); err != nil {
		return ErrStoreUnavailable
	}
	if err := e.resets.DeleteForPrincipal(ctx, p.ID); err != nil {
		return ErrStoreUnavailable
	}
	if err := e.devices.DeleteForPrincipal(ctx, p.ID); err != nil {
		return ErrStoreUnavailable
	}
	if err := e.directory.Delete(ctx, p.ID); err != nil {
		return err
	}

	e.metricInc(internalmetrics.MetricAccountDeleted)
	e.emitAudit(ctx, "ACCOUNT_DELETED", "USER", p.ID, "", OutcomeSuccess)
	return nil
}
