package authcore

import (
	"sync"
	"testing"
)

func TestBackupCodeConcurrencySingleWinner(t *testing.T) {
	engine, directory, _, done := newTestEngine(t, nil)
	defer done()

	p, setup := setupMFAPrincipal(t, engine, directory)
	ctx := testClientCtx("10.0.0.1")
	code := setup.BackupCodes[0]

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	type outcome struct {
		valid bool
		err   error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			valid, err := engine.ValidateBackupCode(ctx, p.ID, code)
			results <- outcome{valid: valid, err: err}
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	losers := 0
	for r := range results {
		if r.err != nil {
			t.Fatalf("unexpected ValidateBackupCode error: %v", r.err)
		}
		if r.valid {
			winners++
		} else {
			losers++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if losers != n-1 {
		t.Fatalf("expected %d losers, got %d", n-1, losers)
	}

	// The remaining codes are untouched.
	if valid, err := engine.ValidateBackupCode(ctx, p.ID, setup.BackupCodes[1]); err != nil || !valid {
		t.Fatalf("sibling code: valid=%v err=%v", valid, err)
	}
}
