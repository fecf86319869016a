package agent

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// draftPrefix marks pages created by the agent as unreviewed.
const draftPrefix = "[DRAFT] "

// execute applies a validated decision, or only logs it when AutoSubmit is
// off. At most one write pass happens per invocation; a version conflict
// surfaces as an error so the scheduler defers the ticket to the next
// cycle, where retrieval sees the fresh page.
func (s *Service) execute(ctx context.Context, ticketKey string, d Decision) error {
	log := s.log.With("ticket", ticketKey, "decision", string(d.Kind))
	// Static mode has no knowledge client; decisions are proposals only.
	autoSubmit := s.cfg.AutoSubmit && s.kb != nil

	switch d.Kind {
	case DecisionNoAction:
		log.Info("no documentation change needed", "rationale", d.Rationale)
		return nil

	case DecisionUpdate:
		if !autoSubmit {
			for _, u := range d.Updates {
				log.Info("proposal only, auto submit off",
					"page_id", u.PageID, "page_title", u.Title,
					"body_len", len(u.Body), "rationale", d.Rationale)
			}
			return nil
		}
		for _, u := range d.Updates {
			comment := fmt.Sprintf("Updated from resolved ticket %s", ticketKey)
			if _, err := s.kb.UpdatePage(ctx, u.PageID, u.Title, textToStorage(u.Body), u.Version, comment); err != nil {
				return fmt.Errorf("update page %s: %w", u.PageID, err)
			}
			log.Info("page updated", "page_id", u.PageID, "page_title", u.Title,
				"changes", u.SuggestedChanges)
		}
		return nil

	case DecisionCreate:
		title := draftPrefix + d.Title
		if !autoSubmit {
			log.Info("proposal only, auto submit off",
				"title", title, "sections", strings.Join(d.Sections, ", "),
				"rationale", d.Rationale)
			return nil
		}

		body := d.Body
		if strings.TrimSpace(body) == "" {
			body = sectionSkeleton(ticketKey, d.Sections)
		} else {
			body = textToStorage(body)
		}

		// A draft with this exact title may already exist from an earlier
		// attempt at the same ticket. Converting to an update keeps the
		// create idempotent across retries.
		existing, err := s.kb.FindByTitle(ctx, title)
		if err != nil {
			return fmt.Errorf("check existing draft %q: %w", title, err)
		}
		if existing != nil {
			comment := fmt.Sprintf("Redrafted from resolved ticket %s", ticketKey)
			if _, err := s.kb.UpdatePage(ctx, existing.ID, existing.Title, body, existing.Version, comment); err != nil {
				return fmt.Errorf("update existing draft %s: %w", existing.ID, err)
			}
			log.Info("existing draft updated", "page_id", existing.ID, "title", title)
			return nil
		}

		page, err := s.kb.CreatePage(ctx, title, body)
		if err != nil {
			return fmt.Errorf("create page %q: %w", title, err)
		}
		log.Info("draft page created", "page_id", page.ID, "title", title, "url", page.URL)
		return nil
	}

	return fmt.Errorf("agent: unknown decision kind %q", d.Kind)
}

// sectionSkeleton renders an empty storage-format outline for a new draft
// when the model proposed sections without a full body.
func sectionSkeleton(ticketKey string, sections []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><em>Draft generated from resolved ticket %s. Review before publishing.</em></p>", html.EscapeString(ticketKey))
	for _, sec := range sections {
		fmt.Fprintf(&b, "<h2>%s</h2><p />", html.EscapeString(sec))
	}
	return b.String()
}

// textToStorage converts plain model-written text to minimal storage
// format: blank-line separated paragraphs, everything escaped.
func textToStorage(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := html.EscapeString(para)
		escaped = strings.ReplaceAll(escaped, "\n", "<br/>")
		b.WriteString("<p>")
		b.WriteString(escaped)
		b.WriteString("</p>")
	}
	return b.String()
}
