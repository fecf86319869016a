package agent

import (
	"errors"

	"github.com/hazyhaar/scribe/confluence"
	"github.com/hazyhaar/scribe/jira"
	"github.com/hazyhaar/scribe/llm"
)

// ErrTicketGone marks a ticket that disappeared from the tracker between
// listing and fetch. The scheduler records it as done without a decision.
var ErrTicketGone = errors.New("agent: ticket gone")

// IsRetryable reports whether a pipeline failure is worth another cycle:
// provider rate limits and outages, tracker or wiki unavailability. Auth
// and validation failures are not.
func IsRetryable(err error) bool {
	return llm.IsRetryable(err) ||
		errors.Is(err, jira.ErrUnavailable) ||
		errors.Is(err, confluence.ErrUnavailable)
}

// IsConflict reports whether a write lost a version race. Conflicts are
// deferred to the next cycle so the decision re-runs against the fresh page.
func IsConflict(err error) bool {
	return errors.Is(err, confluence.ErrConflict)
}
