package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/scribe/docext"
	"github.com/hazyhaar/scribe/jira"
	"github.com/hazyhaar/scribe/prompt"
)

// ProcessKey fetches a ticket by key and runs the full pipeline on it.
// ErrTicketGone is returned when the ticket vanished from the tracker;
// callers treat that as done, not as a failure worth retrying.
func (s *Service) ProcessKey(ctx context.Context, key string) (Decision, error) {
	ticket, err := s.tickets.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jira.ErrNotFound) {
			s.log.Warn("ticket disappeared before processing", "ticket", key)
			return Decision{}, ErrTicketGone
		}
		return Decision{}, fmt.Errorf("fetch ticket %s: %w", key, err)
	}
	return s.Process(ctx, ticket)
}

// Process runs the pipeline stages on an already-fetched ticket: render
// context, synthesize queries, retrieve candidates, decide, execute.
func (s *Service) Process(ctx context.Context, t *jira.Ticket) (Decision, error) {
	log := s.log.With("ticket", t.Key)

	ticketContext := prompt.RenderTicket(t)
	if extra := s.attachmentTexts(ctx, t); extra != "" {
		ticketContext += extra
	}

	queries := s.synthesizeQueries(ctx, t.Summary, ticketContext)
	log.Debug("search queries synthesized", "queries", queries)

	candidates := s.retrieve(ctx, queries)
	log.Debug("candidates retrieved", "count", len(candidates))

	decisionContext := ticketContext + prompt.RenderArticles(articlesOf(candidates))
	decision, err := s.analyze(ctx, decisionContext, candidates)
	if err != nil {
		return Decision{}, fmt.Errorf("analyze ticket %s: %w", t.Key, err)
	}
	log.Info("decision made", "kind", string(decision.Kind),
		"updates", len(decision.Updates), "title", decision.Title,
		"rationale", decision.Rationale)

	if err := s.execute(ctx, t.Key, decision); err != nil {
		return decision, err
	}
	return decision, nil
}

// attachmentTexts extracts text from PDF attachments within the size
// bound. Extraction is best effort: a scanned or malformed PDF is logged
// and skipped, never a pipeline failure.
func (s *Service) attachmentTexts(ctx context.Context, t *jira.Ticket) string {
	if s.tickets == nil {
		return ""
	}
	var b strings.Builder
	for _, att := range t.Attachments {
		if att.MimeType != "application/pdf" {
			continue
		}
		if s.cfg.MaxAttachmentBytes > 0 && att.Size > s.cfg.MaxAttachmentBytes {
			s.log.Debug("attachment skipped, too large",
				"ticket", t.Key, "filename", att.Filename, "size", att.Size)
			continue
		}
		data, err := s.tickets.Download(ctx, att, s.cfg.MaxAttachmentBytes)
		if err != nil {
			s.log.Warn("attachment download failed",
				"ticket", t.Key, "filename", att.Filename, "error", err)
			continue
		}
		text, err := docext.PDFText(data, s.cfg.MaxPDFPages)
		if err != nil {
			s.log.Debug("attachment text extraction failed",
				"ticket", t.Key, "filename", att.Filename, "error", err)
			continue
		}
		b.WriteString(prompt.RenderAttachmentText(att.Filename, text))
	}
	return b.String()
}
