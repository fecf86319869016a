package ledger

import (
	"context"
	"testing"

	"github.com/hazyhaar/scribe/dbopen"

	_ "modernc.org/sqlite"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return New(db)
}

// WHAT: success marks a ticket terminal.
// WHY: terminal tickets must never be dispatched again even though poll
// windows overlap across cycles.
func TestMarkSuccessIsTerminal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	done, err := l.Done(ctx, "10001")
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if done {
		t.Fatal("unseen ticket reported done")
	}

	if err := l.MarkSuccess(ctx, "10001", "OPS-42", "create"); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	done, err = l.Done(ctx, "10001")
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !done {
		t.Fatal("successful ticket not reported done")
	}

	rec, err := l.Get(ctx, "10001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeSuccess)
	}
	if rec.DecisionKind != "create" {
		t.Fatalf("decision kind = %q, want create", rec.DecisionKind)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", rec.AttemptCount)
	}
	if rec.ProcessedAt == 0 {
		t.Fatal("processed_at not set")
	}
}

// WHAT: failures stay retryable until the attempt cap, then flip permanent.
// WHY: transient outages should not burn a ticket, but a ticket that fails
// repeatedly must stop consuming cycles.
func TestMarkFailureFlipsPermanentAtCap(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	const maxAttempts = 3

	for i := 1; i <= maxAttempts; i++ {
		permanent, err := l.MarkFailure(ctx, "10002", "OPS-43", "llm unavailable", maxAttempts)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		wantPermanent := i == maxAttempts
		if permanent != wantPermanent {
			t.Fatalf("attempt %d: permanent = %v, want %v", i, permanent, wantPermanent)
		}

		done, err := l.Done(ctx, "10002")
		if err != nil {
			t.Fatalf("done: %v", err)
		}
		if done != wantPermanent {
			t.Fatalf("attempt %d: done = %v, want %v", i, done, wantPermanent)
		}
	}

	rec, err := l.Get(ctx, "10002")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeFailed)
	}
	if rec.AttemptCount != maxAttempts {
		t.Fatalf("attempt count = %d, want %d", rec.AttemptCount, maxAttempts)
	}
	if rec.LastError != "llm unavailable" {
		t.Fatalf("last error = %q", rec.LastError)
	}
}

// WHAT: a success after failed attempts overwrites the retrying entry.
func TestSuccessAfterFailure(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.MarkFailure(ctx, "10003", "OPS-44", "kb unavailable", 3); err != nil {
		t.Fatalf("mark failure: %v", err)
	}
	if err := l.MarkSuccess(ctx, "10003", "OPS-44", "no_action"); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	rec, err := l.Get(ctx, "10003")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeSuccess)
	}
	if rec.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", rec.AttemptCount)
	}
	if rec.LastError != "" {
		t.Fatalf("last error not cleared: %q", rec.LastError)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	l := newTestLedger(t)
	rec, err := l.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("got %+v, want nil", rec)
	}
}

func TestListAndStats(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.MarkSuccess(ctx, "1", "OPS-1", "create"); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkSuccess(ctx, "2", "OPS-2", "update"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.MarkFailure(ctx, "3", "OPS-3", "boom", 3); err != nil {
		t.Fatal(err)
	}

	records, err := l.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[OutcomeSuccess] != 2 || stats[OutcomeRetrying] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}
