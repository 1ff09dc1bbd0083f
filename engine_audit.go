package authcore

import (
	"context"
	"time"
)

// AuditByActor returns the trail entries recorded for one actor, oldest
// first.
func (e *Engine) AuditByActor(ctx context.Context, actor string) ([]AuditEntry, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	entries, err := e.auditTrail.ByActor(ctx, actor)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return entries, nil
}

// AuditByEntityType returns the trail entries touching one entity type,
// oldest first.
func (e *Engine) AuditByEntityType(ctx context.Context, entityType string) ([]AuditEntry, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	entries, err := e.auditTrail.ByEntityType(ctx, entityType)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return entries, nil
}

// AuditBetween returns the trail entries with start <= timestamp < end,
// oldest first.
func (e *Engine) AuditBetween(ctx context.Context, start, end time.Time) ([]AuditEntry, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	entries, err := e.auditTrail.Between(ctx, start, end)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return entries, nil
}
