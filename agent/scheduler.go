package agent

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hazyhaar/scribe/jira"
)

// Run is the poll loop. The first cycle starts immediately; afterwards one
// cycle runs per poll interval. Cancellation is honored at the sleep
// boundary and between tickets, never mid-ticket.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("poll loop started",
		"interval", s.cfg.PollInterval().String(),
		"lookback", s.cfg.Lookback().String(),
		"auto_submit", s.cfg.AutoSubmit)

	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		s.cycle(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("poll loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle processes one poll window. Terminal ledger state is written after
// each ticket, before the next one starts, so a crash never loses more
// than the in-flight ticket.
func (s *Service) cycle(ctx context.Context) {
	log := s.log.With("cycle", s.ids())
	until := s.now()
	since := until.Add(-s.cfg.Lookback())

	stubs, err := s.tickets.ListResolved(ctx, since, until)
	if err != nil {
		log.Error("listing resolved tickets failed", "error", err)
		return
	}

	pending, err := s.filterPending(ctx, stubs)
	if err != nil {
		log.Error("ledger filter failed", "error", err)
		return
	}
	if len(pending) == 0 {
		log.Debug("no new resolved tickets in window",
			"listed", len(stubs), "since", since, "until", until)
		return
	}

	// Oldest resolution first; ID breaks ties so ordering is stable
	// across cycles.
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].ResolvedAt.Equal(pending[j].ResolvedAt) {
			return pending[i].ResolvedAt.Before(pending[j].ResolvedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	log.Info("processing resolved tickets", "count", len(pending), "listed", len(stubs))

	for _, stub := range pending {
		if ctx.Err() != nil {
			return
		}
		s.dispatch(ctx, stub)
	}
}

// filterPending drops tickets the ledger already settled. Reprocess mode
// bypasses the filter entirely.
func (s *Service) filterPending(ctx context.Context, stubs []jira.Stub) ([]jira.Stub, error) {
	if s.cfg.Reprocess {
		return stubs, nil
	}
	var pending []jira.Stub
	for _, stub := range stubs {
		done, err := s.ledger.Done(ctx, stub.ID)
		if err != nil {
			return nil, err
		}
		if !done {
			pending = append(pending, stub)
		}
	}
	return pending, nil
}

// dispatch runs one ticket through the pipeline and records the outcome.
func (s *Service) dispatch(ctx context.Context, stub jira.Stub) {
	decision, err := s.ProcessKey(ctx, stub.Key)

	switch {
	case err == nil:
		if lerr := s.ledger.MarkSuccess(ctx, stub.ID, stub.Key, string(decision.Kind)); lerr != nil {
			s.log.Error("ledger write failed", "ticket", stub.Key, "error", lerr)
		}

	case errors.Is(err, ErrTicketGone):
		// Deleted tickets are settled without a decision so they stop
		// reappearing every cycle.
		if lerr := s.ledger.MarkSuccess(ctx, stub.ID, stub.Key, ""); lerr != nil {
			s.log.Error("ledger write failed", "ticket", stub.Key, "error", lerr)
		}

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-ticket: leave no ledger trace, the next run
		// picks the ticket up cleanly.
		s.log.Info("ticket interrupted by shutdown", "ticket", stub.Key)

	default:
		permanent, lerr := s.ledger.MarkFailure(ctx, stub.ID, stub.Key, err.Error(), s.cfg.MaxAttempts)
		if lerr != nil {
			s.log.Error("ledger write failed", "ticket", stub.Key, "error", lerr)
		}
		switch {
		case permanent:
			s.log.Error("ticket permanently failed", "ticket", stub.Key, "error", err)
		case IsConflict(err):
			s.log.Warn("write conflict, deferring to next cycle", "ticket", stub.Key, "error", err)
		default:
			s.log.Warn("ticket failed, will retry next cycle",
				"ticket", stub.Key, "retryable", IsRetryable(err), "error", err)
		}
	}
}
