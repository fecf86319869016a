package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hazyhaar/scribe/jira"
)

// LoadStaticTickets reads fully-formed tickets from a JSON file. Static
// mode exists for prompt iteration: the pipeline runs without a live
// tracker and the ledger still records outcomes.
func LoadStaticTickets(path string) ([]*jira.Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent: read static tickets: %w", err)
	}
	var tickets []*jira.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil, fmt.Errorf("agent: parse static tickets %s: %w", path, err)
	}
	for i, t := range tickets {
		if t.Key == "" {
			return nil, fmt.Errorf("agent: static ticket %d has no key", i)
		}
		if t.ID == "" {
			t.ID = t.Key
		}
	}
	return tickets, nil
}

// RunStatic processes each static ticket once and returns. Failures are
// logged and recorded but do not stop the pass.
func (s *Service) RunStatic(ctx context.Context) error {
	tickets, err := LoadStaticTickets(s.cfg.StaticTicketsPath)
	if err != nil {
		return err
	}
	s.log.Info("static mode pass started", "tickets", len(tickets))

	for _, t := range tickets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		decision, err := s.Process(ctx, t)
		if err != nil {
			s.log.Warn("static ticket failed", "ticket", t.Key, "error", err)
			if _, lerr := s.ledger.MarkFailure(ctx, t.ID, t.Key, err.Error(), s.cfg.MaxAttempts); lerr != nil {
				s.log.Error("ledger write failed", "ticket", t.Key, "error", lerr)
			}
			continue
		}
		if err := s.ledger.MarkSuccess(ctx, t.ID, t.Key, string(decision.Kind)); err != nil {
			s.log.Error("ledger write failed", "ticket", t.Key, "error", err)
		}
	}
	s.log.Info("static mode pass finished")
	return nil
}
