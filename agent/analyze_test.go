package agent

import (
	"testing"

	"github.com/hazyhaar/scribe/confluence"
)

func candidateSet() []candidate {
	return []candidate{
		{Result: confluence.SearchResult{PageID: "100", Title: "Payment runbook"}, Version: 7},
		{Result: confluence.SearchResult{PageID: "200", Title: "Gateway setup"}, Version: 2},
	}
}

func TestParseDecisionUpdate(t *testing.T) {
	raw := `{
		"needsNewArticle": false,
		"existingArticleUpdates": [
			{"pageID": "100", "suggestedChanges": "add timeout section", "redraftedContent": "New body."}
		],
		"proposedTitle": "",
		"sections": [],
		"reasoning": "runbook misses the timeout case"
	}`

	d := parseDecision(raw, candidateSet())
	if d.Kind != DecisionUpdate {
		t.Fatalf("kind = %q, want update", d.Kind)
	}
	if len(d.Updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(d.Updates))
	}
	u := d.Updates[0]
	if u.PageID != "100" || u.Title != "Payment runbook" || u.Version != 7 {
		t.Fatalf("update target = %+v", u)
	}
	if d.Rationale != "runbook misses the timeout case" {
		t.Fatalf("rationale = %q", d.Rationale)
	}
}

// WHAT: updates naming a page the model was not shown invalidate the
// whole decision.
// WHY: an obedient executor would write to an arbitrary page; validation
// is the only barrier between model output and the wiki.
func TestParseDecisionRejectsUnknownPageID(t *testing.T) {
	raw := `{
		"existingArticleUpdates": [
			{"pageID": "100", "suggestedChanges": "ok", "redraftedContent": "Body."},
			{"pageID": "999", "suggestedChanges": "bad", "redraftedContent": "Body."}
		],
		"reasoning": "x"
	}`

	d := parseDecision(raw, candidateSet())
	if d.Kind != DecisionNoAction {
		t.Fatalf("kind = %q, want no_action", d.Kind)
	}
	if d.Rationale != invalidOutputRationale {
		t.Fatalf("rationale = %q", d.Rationale)
	}
}

func TestParseDecisionCreate(t *testing.T) {
	raw := "```json\n" + `{
		"needsNewArticle": true,
		"existingArticleUpdates": [],
		"proposedTitle": "Handling gateway timeouts",
		"sections": ["Symptoms", "Resolution", " "],
		"reasoning": "nothing covers this failure mode"
	}` + "\n```"

	d := parseDecision(raw, nil)
	if d.Kind != DecisionCreate {
		t.Fatalf("kind = %q, want create", d.Kind)
	}
	if d.Title != "Handling gateway timeouts" {
		t.Fatalf("title = %q", d.Title)
	}
	if len(d.Sections) != 2 {
		t.Fatalf("sections = %q", d.Sections)
	}
	if d.Body != "" {
		t.Fatalf("body = %q, want empty", d.Body)
	}
}

// WHAT: a create carrying draftContent surfaces it as the decision body,
// so the executor drafts real text instead of an empty outline.
func TestParseDecisionCreateWithDraftContent(t *testing.T) {
	raw := `{
		"needsNewArticle": true,
		"proposedTitle": "Handling gateway timeouts",
		"sections": ["Symptoms"],
		"draftContent": "  Gateways time out when upstream stalls.  ",
		"reasoning": "nothing covers this failure mode"
	}`

	d := parseDecision(raw, nil)
	if d.Kind != DecisionCreate {
		t.Fatalf("kind = %q, want create", d.Kind)
	}
	if d.Body != "Gateways time out when upstream stalls." {
		t.Fatalf("body = %q", d.Body)
	}
}

// WHAT: an empty candidate set still yields a valid decision.
func TestParseDecisionEmptyCandidates(t *testing.T) {
	raw := `{"needsNewArticle": false, "existingArticleUpdates": [], "reasoning": "already documented"}`
	d := parseDecision(raw, nil)
	if d.Kind != DecisionNoAction {
		t.Fatalf("kind = %q, want no_action", d.Kind)
	}
	if d.Rationale != "already documented" {
		t.Fatalf("rationale = %q", d.Rationale)
	}
}

func TestParseDecisionMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "I would update the runbook."},
		{"broken json", `{"needsNewArticle": tru`},
		{"array", `["not", "an", "object"]`},
		{"create without title", `{"needsNewArticle": true, "proposedTitle": " ", "reasoning": "x"}`},
		{"update with empty body", `{"existingArticleUpdates": [{"pageID": "100", "redraftedContent": ""}], "reasoning": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseDecision(tt.raw, candidateSet())
			if d.Kind != DecisionNoAction {
				t.Fatalf("kind = %q, want no_action", d.Kind)
			}
			if d.Rationale != invalidOutputRationale {
				t.Fatalf("rationale = %q", d.Rationale)
			}
		})
	}
}
