package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRefreshIssueReplacesPrevious(t *testing.T) {
	store := NewRefreshStore(newTestClient(t), "")
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	first := RefreshToken{Token: "tok-1", PrincipalID: "u1", ExpiresAt: expires}
	second := RefreshToken{Token: "tok-2", PrincipalID: "u1", ExpiresAt: expires}

	if err := store.Issue(ctx, first, time.Hour); err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}
	if err := store.Issue(ctx, second, time.Hour); err != nil {
		t.Fatalf("second Issue failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected first token destroyed, got %v", err)
	}
	record, err := store.Lookup(ctx, "tok-2")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if record.PrincipalID != "u1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestRefreshDeleteForPrincipal(t *testing.T) {
	store := NewRefreshStore(newTestClient(t), "")
	ctx := context.Background()

	token := RefreshToken{Token: "tok-1", PrincipalID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Issue(ctx, token, time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := store.DeleteForPrincipal(ctx, "u1"); err != nil {
		t.Fatalf("DeleteForPrincipal failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected token gone, got %v", err)
	}

	// Revoking an already-clean principal is a no-op.
	if err := store.DeleteForPrincipal(ctx, "u1"); err != nil {
		t.Fatalf("second DeleteForPrincipal failed: %v", err)
	}
}

func TestRefreshTokensAreIndependentPerPrincipal(t *testing.T) {
	store := NewRefreshStore(newTestClient(t), "")
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	if err := store.Issue(ctx, RefreshToken{Token: "tok-a", PrincipalID: "u1", ExpiresAt: expires}, time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := store.Issue(ctx, RefreshToken{Token: "tok-b", PrincipalID: "u2", ExpiresAt: expires}, time.Hour); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "tok-a"); err != nil {
		t.Fatalf("u1 token must survive u2 issuance: %v", err)
	}
}

func TestResetConsumeIsSingleUse(t *testing.T) {
	store := NewResetStore(newTestClient(t), "")
	ctx := context.Background()
	now := time.Now()

	record := ResetRecord{PrincipalID: "u1", ExpiresAt: now.Add(time.Hour)}
	if err := store.Save(ctx, "tok-1", record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	consumed, err := store.Consume(ctx, "tok-1", now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if consumed.PrincipalID != "u1" || !consumed.Used {
		t.Fatalf("unexpected consumed record: %+v", consumed)
	}

	if _, err := store.Consume(ctx, "tok-1", now); !errors.Is(err, ErrResetUsed) {
		t.Fatalf("expected ErrResetUsed, got %v", err)
	}
	if _, err := store.Consume(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetConsumeExpired(t *testing.T) {
	store := NewResetStore(newTestClient(t), "")
	ctx := context.Background()
	now := time.Now()

	record := ResetRecord{PrincipalID: "u1", ExpiresAt: now.Add(-time.Minute)}
	if err := store.Save(ctx, "tok-1", record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1", now); !errors.Is(err, ErrResetExpired) {
		t.Fatalf("expected ErrResetExpired, got %v", err)
	}
	// An expired token is not consumed, so the classification is stable.
	if _, err := store.Consume(ctx, "tok-1", now); !errors.Is(err, ErrResetExpired) {
		t.Fatalf("expected ErrResetExpired again, got %v", err)
	}
}

func TestResetDeleteForPrincipal(t *testing.T) {
	store := NewResetStore(newTestClient(t), "")
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	if err := store.Save(ctx, "tok-1", ResetRecord{PrincipalID: "u1", ExpiresAt: expires}, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "tok-2", ResetRecord{PrincipalID: "u2", ExpiresAt: expires}, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.DeleteForPrincipal(ctx, "u1"); err != nil {
		t.Fatalf("DeleteForPrincipal failed: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected u1 token gone, got %v", err)
	}
	if _, err := store.Get(ctx, "tok-2"); err != nil {
		t.Fatalf("u2 token must survive: %v", err)
	}
}

func TestBackupCodeConsume(t *testing.T) {
	store := NewBackupCodeStore(newTestClient(t), "")
	ctx := context.Background()
	now := time.Now()

	codes := []BackupCode{
		{Code: "111111", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Code: "222222", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Code: "333333", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)},
	}
	if err := store.Replace(ctx, "u1", codes, time.Hour); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if err := store.Consume(ctx, "u1", "111111", now); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if err := store.Consume(ctx, "u1", "111111", now); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("consumed code: expected ErrCodeInvalid, got %v", err)
	}
	if err := store.Consume(ctx, "u1", "333333", now); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expired code: expected ErrCodeInvalid, got %v", err)
	}
	if err := store.Consume(ctx, "u1", "999999", now); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("unknown code: expected ErrCodeInvalid, got %v", err)
	}
	if err := store.Consume(ctx, "u2", "111111", now); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("unknown principal: expected ErrCodeInvalid, got %v", err)
	}

	remaining, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 3 || !remaining[0].Used || remaining[1].Used {
		t.Fatalf("unexpected set after consume: %+v", remaining)
	}
}

func TestBackupCodeReplaceDropsOldSet(t *testing.T) {
	store := NewBackupCodeStore(newTestClient(t), "")
	ctx := context.Background()
	now := time.Now()

	first := []BackupCode{{Code: "111111", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}}
	second := []BackupCode{{Code: "222222", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}}

	if err := store.Replace(ctx, "u1", first, time.Hour); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := store.Replace(ctx, "u1", second, time.Hour); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if err := store.Consume(ctx, "u1", "111111", now); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("old code must die on replace, got %v", err)
	}
	if err := store.Consume(ctx, "u1", "222222", now); err != nil {
		t.Fatalf("new code must work: %v", err)
	}
}

func TestDeviceUpdateCreateAndMutate(t *testing.T) {
	store := NewDeviceStore(newTestClient(t), "")
	ctx := context.Background()

	created, err := store.Update(ctx, "u1", "fp-1",
		func() DeviceRecord {
			return DeviceRecord{ID: "d1", Status: DeviceActive}
		},
		func(record *DeviceRecord) error {
			record.LoginAttempts++
			return nil
		})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if created.PrincipalID != "u1" || created.Fingerprint != "fp-1" || created.LoginAttempts != 1 {
		t.Fatalf("unexpected record: %+v", created)
	}

	// Second update finds the existing record instead of creating.
	updated, err := store.Update(ctx, "u1", "fp-1",
		func() DeviceRecord {
			t.Fatal("create must not run for an existing record")
			return DeviceRecord{}
		},
		func(record *DeviceRecord) error {
			record.LoginAttempts++
			return nil
		})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.ID != "d1" || updated.LoginAttempts != 2 {
		t.Fatalf("unexpected record: %+v", updated)
	}
}

func TestDeviceUpdatePropagatesMutateError(t *testing.T) {
	store := NewDeviceStore(newTestClient(t), "")
	ctx := context.Background()

	if _, err := store.Update(ctx, "u1", "fp-1",
		func() DeviceRecord { return DeviceRecord{ID: "d1", Status: DeviceActive} },
		nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	sentinel := errors.New("mutate refused")
	_, err := store.Update(ctx, "u1", "fp-1", nil, func(*DeviceRecord) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected mutate error through the chain, got %v", err)
	}
}

func TestDeviceUpdateByIDAndList(t *testing.T) {
	store := NewDeviceStore(newTestClient(t), "")
	ctx := context.Background()

	for i, id := range []string{"d1", "d2"} {
		fp := []string{"fp-1", "fp-2"}[i]
		if _, err := store.Update(ctx, "u1", fp,
			func() DeviceRecord { return DeviceRecord{ID: id, Status: DeviceActive} },
			nil); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	record, err := store.UpdateByID(ctx, "d2", func(record *DeviceRecord) error {
		record.Status = DeviceBlocked
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateByID failed: %v", err)
	}
	if record.Fingerprint != "fp-2" || record.Status != DeviceBlocked {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := store.UpdateByID(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	records, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if err := store.DeleteForPrincipal(ctx, "u1"); err != nil {
		t.Fatalf("DeleteForPrincipal failed: %v", err)
	}
	records, err = store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty list, got %d", len(records))
	}
	if _, err := store.GetByID(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected id index cleared, got %v", err)
	}
}

func TestChallengeRecordFailureBudget(t *testing.T) {
	store := NewChallengeStore(newTestClient(t), "")
	ctx := context.Background()

	record := ChallengeRecord{PrincipalID: "u1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Create(ctx, "c1", record, time.Minute); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.RecordFailure(ctx, "c1", 3); err != nil {
		t.Fatalf("first failure errored: %v", err)
	}
	if err := store.RecordFailure(ctx, "c1", 3); err != nil {
		t.Fatalf("second failure errored: %v", err)
	}
	if err := store.RecordFailure(ctx, "c1", 3); !errors.Is(err, ErrChallengeAttempts) {
		t.Fatalf("expected ErrChallengeAttempts, got %v", err)
	}
	// Exhaustion destroys the challenge.
	if _, err := store.Get(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected destroyed challenge, got %v", err)
	}
	if err := store.RecordFailure(ctx, "c1", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
