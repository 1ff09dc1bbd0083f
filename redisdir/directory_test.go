package redisdir

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/agilepm-dev/authcore"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "")
}

func TestCreateAndLookup(t *testing.T) {
	directory := newTestDirectory(t)
	ctx := context.Background()

	p := authcore.Principal{
		ID:           "u1",
		Name:         "Alice",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Role:         authcore.RoleDeveloper,
	}
	if _, err := directory.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Email lookup is case-insensitive.
	found, err := directory.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if found.ID != "u1" || found.Role != authcore.RoleDeveloper {
		t.Fatalf("unexpected principal: %+v", found)
	}

	if _, err := directory.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := directory.GetByID(ctx, "missing"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	directory := newTestDirectory(t)
	ctx := context.Background()

	p := authcore.Principal{ID: "u1", Email: "alice@example.com"}
	if _, err := directory.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := authcore.Principal{ID: "u2", Email: "ALICE@example.com"}
	if _, err := directory.Create(ctx, dup); !errors.Is(err, authcore.ErrBusinessConflict) {
		t.Fatalf("expected ErrBusinessConflict, got %v", err)
	}
}

func TestMutations(t *testing.T) {
	directory := newTestDirectory(t)
	ctx := context.Background()

	p := authcore.Principal{ID: "u1", Email: "alice@example.com", PasswordHash: "old"}
	if _, err := directory.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := directory.UpdatePasswordHash(ctx, "u1", "new"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}
	if err := directory.SetMFASecret(ctx, "u1", "secret"); err != nil {
		t.Fatalf("SetMFASecret failed: %v", err)
	}
	if err := directory.SetMFAEnabled(ctx, "u1", true); err != nil {
		t.Fatalf("SetMFAEnabled failed: %v", err)
	}

	stored, err := directory.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.PasswordHash != "new" || stored.MFASecret != "secret" || !stored.MFAEnabled {
		t.Fatalf("unexpected state: %+v", stored)
	}

	if err := directory.ClearMFA(ctx, "u1"); err != nil {
		t.Fatalf("ClearMFA failed: %v", err)
	}
	stored, _ = directory.GetByID(ctx, "u1")
	if stored.MFASecret != "" || stored.MFAEnabled {
		t.Fatalf("expected cleared MFA state: %+v", stored)
	}

	if err := directory.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	directory := newTestDirectory(t)
	ctx := context.Background()

	if _, err := directory.Create(ctx, authcore.Principal{ID: "u1", Email: "alice@example.com"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		hash := fmt.Sprintf("hash-%d", i)
		secret := fmt.Sprintf("secret-%d", i)

		var wg sync.WaitGroup
		wg.Add(2)
		errs := make([]error, 2)
		go func() {
			defer wg.Done()
			errs[0] = directory.UpdatePasswordHash(ctx, "u1", hash)
		}()
		go func() {
			defer wg.Done()
			errs[1] = directory.SetMFASecret(ctx, "u1", secret)
		}()
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				t.Fatalf("concurrent mutate failed: %v", err)
			}
		}

		stored, err := directory.GetByID(ctx, "u1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if stored.PasswordHash != hash || stored.MFASecret != secret {
			t.Fatalf("lost update at round %d: %+v", i, stored)
		}
	}
}

func TestDeleteReleasesEmail(t *testing.T) {
	directory := newTestDirectory(t)
	ctx := context.Background()

	p := authcore.Principal{ID: "u1", Email: "alice@example.com"}
	if _, err := directory.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := directory.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := directory.GetByID(ctx, "u1"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The email index is released along with the record.
	if _, err := directory.Create(ctx, authcore.Principal{ID: "u2", Email: "alice@example.com"}); err != nil {
		t.Fatalf("re-Create failed: %v", err)
	}
}
