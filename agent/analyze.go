package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// invalidOutputRationale is recorded when model output fails validation.
const invalidOutputRationale = "invalid model output"

// analysisJSON is the exact shape the second stage must produce.
type analysisJSON struct {
	NeedsNewArticle        bool   `json:"needsNewArticle"`
	ExistingArticleUpdates []struct {
		PageID           string `json:"pageID"`
		SuggestedChanges string `json:"suggestedChanges"`
		RedraftedContent string `json:"redraftedContent"`
	} `json:"existingArticleUpdates"`
	ProposedTitle string   `json:"proposedTitle"`
	Sections      []string `json:"sections"`
	DraftContent  string   `json:"draftContent"`
	Reasoning     string   `json:"reasoning"`
}

// analyze runs the second inference stage and validates its output into a
// Decision. This is the trust boundary between model output and writes:
// anything syntactically off, or any update referencing a page the model
// was not shown, collapses to NoAction. An empty candidate set is fine and
// commonly yields a create.
func (s *Service) analyze(ctx context.Context, ticketContext string, candidates []candidate) (Decision, error) {
	raw, err := s.llm.Complete(ctx, s.analyzTpl.Messages(ticketContext))
	if err != nil {
		return Decision{}, err
	}
	return parseDecision(raw, candidates), nil
}

func parseDecision(raw string, candidates []candidate) Decision {
	payload := extractJSON(raw, '{', '}')
	if payload == "" {
		return NoAction(invalidOutputRationale)
	}

	var parsed analysisJSON
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return NoAction(invalidOutputRationale)
	}

	rationale := strings.TrimSpace(parsed.Reasoning)
	if rationale == "" {
		rationale = "no reasoning given"
	}

	if len(parsed.ExistingArticleUpdates) > 0 {
		byID := make(map[string]candidate, len(candidates))
		for _, c := range candidates {
			byID[c.Result.PageID] = c
		}

		updates := make([]PageUpdate, 0, len(parsed.ExistingArticleUpdates))
		for _, u := range parsed.ExistingArticleUpdates {
			target, ok := byID[strings.TrimSpace(u.PageID)]
			if !ok {
				// Page the model was never shown. The whole decision is
				// untrustworthy, not just this entry.
				return NoAction(invalidOutputRationale)
			}
			body := strings.TrimSpace(u.RedraftedContent)
			if body == "" {
				return NoAction(invalidOutputRationale)
			}
			updates = append(updates, PageUpdate{
				PageID:           target.Result.PageID,
				Title:            target.Result.Title,
				Version:          target.Version,
				SuggestedChanges: strings.TrimSpace(u.SuggestedChanges),
				Body:             body,
			})
		}
		return Decision{Kind: DecisionUpdate, Updates: updates, Rationale: rationale}
	}

	if parsed.NeedsNewArticle {
		title := strings.TrimSpace(parsed.ProposedTitle)
		if title == "" {
			return NoAction(invalidOutputRationale)
		}
		sections := make([]string, 0, len(parsed.Sections))
		for _, sec := range parsed.Sections {
			if sec = strings.TrimSpace(sec); sec != "" {
				sections = append(sections, sec)
			}
		}
		// Draft body is optional; without it the executor renders an empty
		// section outline instead.
		return Decision{
			Kind:      DecisionCreate,
			Title:     title,
			Sections:  sections,
			Body:      strings.TrimSpace(parsed.DraftContent),
			Rationale: rationale,
		}
	}

	return NoAction(rationale)
}
