package agent

import (
	"context"
	"testing"

	"github.com/hazyhaar/scribe/confluence"
)

// WHAT: results from all queries merge by page ID keeping the best score,
// capped at TopK, and each surviving candidate carries the page version.
func TestRetrieveMergesAndCaps(t *testing.T) {
	kb := &fakeKB{
		results: map[string][]confluence.SearchResult{
			"timeouts": {
				{PageID: "100", Title: "Runbook", Score: 3},
				{PageID: "200", Title: "Setup", Score: 2},
			},
			"payments": {
				{PageID: "100", Title: "Runbook", Score: 5},
				{PageID: "300", Title: "FAQ", Score: 1},
			},
		},
		pages: map[string]*confluence.Page{
			"100": {ID: "100", Title: "Runbook", Body: "<p>a</p>", Version: 7},
			"200": {ID: "200", Title: "Setup", Body: "<p>b</p>", Version: 2},
			"300": {ID: "300", Title: "FAQ", Body: "<p>c</p>", Version: 4},
		},
	}

	cfg := testConfig()
	cfg.TopK = 2
	svc := newTestService(t, cfg, Deps{LLM: &fakeLLM{}, Tickets: &fakeTickets{}, KB: kb})

	got := svc.retrieve(context.Background(), []string{"timeouts", "payments"})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Result.PageID != "100" || got[0].Result.Score != 5 {
		t.Fatalf("best candidate = %+v, want page 100 with merged score 5", got[0].Result)
	}
	if got[0].Version != 7 {
		t.Fatalf("version = %d, want 7", got[0].Version)
	}
	if got[1].Result.PageID != "200" {
		t.Fatalf("second candidate = %+v, want page 200", got[1].Result)
	}
}

// WHAT: a candidate whose page fetch fails is dropped, not fatal.
func TestRetrieveSkipsUnfetchablePages(t *testing.T) {
	kb := &fakeKB{
		results: map[string][]confluence.SearchResult{
			"q": {
				{PageID: "100", Score: 2},
				{PageID: "gone", Score: 1},
			},
		},
		pages: map[string]*confluence.Page{
			"100": {ID: "100", Body: "<p>a</p>", Version: 1},
		},
	}

	svc := newTestService(t, testConfig(), Deps{LLM: &fakeLLM{}, Tickets: &fakeTickets{}, KB: kb})
	got := svc.retrieve(context.Background(), []string{"q"})
	if len(got) != 1 || got[0].Result.PageID != "100" {
		t.Fatalf("got %+v, want only page 100", got)
	}
}

func TestRetrieveEmptyQueries(t *testing.T) {
	svc := newTestService(t, testConfig(), Deps{LLM: &fakeLLM{}, Tickets: &fakeTickets{}, KB: &fakeKB{}})
	if got := svc.retrieve(context.Background(), nil); len(got) != 0 {
		t.Fatalf("got %d candidates, want 0", len(got))
	}
}
