package agent

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/scribe/agent/internal/ledger"
	"github.com/hazyhaar/scribe/confluence"
	"github.com/hazyhaar/scribe/jira"
)

const (
	queriesJSON  = `["gateway timeout"]`
	noActionJSON = `{"needsNewArticle": false, "existingArticleUpdates": [], "reasoning": "covered"}`
	createJSON   = `{"needsNewArticle": true, "existingArticleUpdates": [], "proposedTitle": "Timeouts", "sections": ["Fix"], "reasoning": "gap"}`
)

func stubFor(t *jira.Ticket) jira.Stub {
	return jira.Stub{ID: t.ID, Key: t.Key, Summary: t.Summary, ResolvedAt: t.ResolvedAt}
}

// WHAT: overlapping poll windows process a ticket exactly once; the
// ledger, not the window, is the dedup authority.
func TestCycleProcessesTicketOnce(t *testing.T) {
	ticket := resolvedTicket("OPS-1")
	tickets := &fakeTickets{
		stubs:   []jira.Stub{stubFor(ticket)},
		tickets: map[string]*jira.Ticket{"OPS-1": ticket},
	}
	// Two pipeline runs worth of responses; the second must never be used.
	model := &fakeLLM{responses: []string{queriesJSON, noActionJSON, queriesJSON, noActionJSON}}
	svc := newTestService(t, testConfig(), Deps{LLM: model, Tickets: tickets, KB: &fakeKB{}})

	ctx := context.Background()
	svc.cycle(ctx)
	svc.cycle(ctx)

	if model.calls != 2 {
		t.Fatalf("llm calls = %d, want 2 (one pipeline run)", model.calls)
	}
	rec, err := svc.ledger.Get(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if rec.Outcome != ledger.OutcomeSuccess || rec.DecisionKind != "no_action" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestCycleReprocessBypassesLedger(t *testing.T) {
	ticket := resolvedTicket("OPS-1")
	tickets := &fakeTickets{
		stubs:   []jira.Stub{stubFor(ticket)},
		tickets: map[string]*jira.Ticket{"OPS-1": ticket},
	}
	model := &fakeLLM{responses: []string{queriesJSON, noActionJSON, queriesJSON, noActionJSON}}
	cfg := testConfig()
	cfg.Reprocess = true
	svc := newTestService(t, cfg, Deps{LLM: model, Tickets: tickets, KB: &fakeKB{}})

	ctx := context.Background()
	svc.cycle(ctx)
	svc.cycle(ctx)

	if model.calls != 4 {
		t.Fatalf("llm calls = %d, want 4 (two pipeline runs)", model.calls)
	}
}

// WHAT: a ticket deleted between listing and fetch settles without a
// decision instead of failing every cycle.
func TestCycleSettlesGoneTicket(t *testing.T) {
	gone := resolvedTicket("OPS-9")
	tickets := &fakeTickets{stubs: []jira.Stub{stubFor(gone)}, tickets: map[string]*jira.Ticket{}}
	svc := newTestService(t, testConfig(), Deps{LLM: &fakeLLM{}, Tickets: tickets, KB: &fakeKB{}})

	ctx := context.Background()
	svc.cycle(ctx)

	rec, err := svc.ledger.Get(ctx, gone.ID)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if rec == nil || rec.Outcome != ledger.OutcomeSuccess || rec.DecisionKind != "" {
		t.Fatalf("record = %+v, want success with empty decision", rec)
	}
}

// WHAT: a write conflict leaves the ticket unsettled; the next cycle
// retries it against fresh candidates and succeeds.
func TestCycleDefersConflictToNextCycle(t *testing.T) {
	ticket := resolvedTicket("OPS-2")
	tickets := &fakeTickets{
		stubs:   []jira.Stub{stubFor(ticket)},
		tickets: map[string]*jira.Ticket{"OPS-2": ticket},
	}
	kb := &fakeKB{writeErr: confluence.ErrConflict}
	model := &fakeLLM{responses: []string{queriesJSON, createJSON, queriesJSON, createJSON}}
	cfg := testConfig()
	cfg.AutoSubmit = true
	svc := newTestService(t, cfg, Deps{LLM: model, Tickets: tickets, KB: kb})

	ctx := context.Background()
	svc.cycle(ctx)

	rec, err := svc.ledger.Get(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if rec.Outcome == ledger.OutcomeSuccess {
		t.Fatal("conflicted ticket marked success")
	}

	kb.writeErr = nil
	svc.cycle(ctx)

	rec, err = svc.ledger.Get(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if rec.Outcome != ledger.OutcomeSuccess {
		t.Fatalf("outcome = %q after retry, want success", rec.Outcome)
	}
	if len(kb.created) != 1 {
		t.Fatalf("creates = %d, want 1", len(kb.created))
	}
}

// WHAT: malformed analysis output coerces to no action; the ticket still
// succeeds and nothing is written.
func TestCycleMalformedAnalysisIsNoAction(t *testing.T) {
	ticket := resolvedTicket("OPS-3")
	tickets := &fakeTickets{
		stubs:   []jira.Stub{stubFor(ticket)},
		tickets: map[string]*jira.Ticket{"OPS-3": ticket},
	}
	kb := &fakeKB{}
	model := &fakeLLM{responses: []string{queriesJSON, "sorry, I cannot answer in JSON"}}
	cfg := testConfig()
	cfg.AutoSubmit = true
	svc := newTestService(t, cfg, Deps{LLM: model, Tickets: tickets, KB: kb})

	ctx := context.Background()
	svc.cycle(ctx)

	rec, err := svc.ledger.Get(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if rec.Outcome != ledger.OutcomeSuccess || rec.DecisionKind != "no_action" {
		t.Fatalf("record = %+v, want success/no_action", rec)
	}
	if kb.writes() != 0 {
		t.Fatalf("writes = %d, want 0", kb.writes())
	}
}

// WHAT: tickets run oldest resolution first, ID breaking ties.
func TestCycleOrdersByResolvedAt(t *testing.T) {
	older := resolvedTicket("OPS-10")
	older.ResolvedAt = time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	newer := resolvedTicket("OPS-11")
	newer.ResolvedAt = time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)

	tickets := &fakeTickets{
		// Listed newest first on purpose.
		stubs:   []jira.Stub{stubFor(newer), stubFor(older)},
		tickets: map[string]*jira.Ticket{"OPS-10": older, "OPS-11": newer},
	}
	model := &fakeLLM{responses: []string{queriesJSON, noActionJSON, queriesJSON, noActionJSON}}
	svc := newTestService(t, testConfig(), Deps{LLM: model, Tickets: tickets, KB: &fakeKB{}})

	svc.cycle(context.Background())

	if len(tickets.getOrder) != 2 || tickets.getOrder[0] != "OPS-10" || tickets.getOrder[1] != "OPS-11" {
		t.Fatalf("processing order = %v, want [OPS-10 OPS-11]", tickets.getOrder)
	}
}
