package agent

// DecisionKind classifies what the analysis stage wants done with the
// knowledge base for one ticket.
type DecisionKind string

const (
	// DecisionNoAction means existing documentation already covers the
	// ticket, or the model output could not be trusted.
	DecisionNoAction DecisionKind = "no_action"
	// DecisionUpdate targets one or more existing pages.
	DecisionUpdate DecisionKind = "update"
	// DecisionCreate proposes a new draft page.
	DecisionCreate DecisionKind = "create"
)

// PageUpdate is one validated edit against a page that was part of the
// candidate set shown to the model. PageID is guaranteed to be a candidate
// page; Version is the version captured when the candidate was fetched, so
// a concurrent edit surfaces as a version conflict instead of a silent
// overwrite.
type PageUpdate struct {
	PageID           string
	Title            string
	Version          int
	SuggestedChanges string
	Body             string
}

// Decision is the validated outcome of the analysis stage. The executor
// only ever sees decisions that passed validation: updates reference known
// candidates, creates carry a title.
type Decision struct {
	Kind      DecisionKind
	Updates   []PageUpdate // DecisionUpdate
	Title     string       // DecisionCreate
	Sections  []string     // DecisionCreate
	Body      string       // DecisionCreate, optional draft body
	Rationale string
}

// NoAction builds a no-op decision with a rationale.
func NoAction(rationale string) Decision {
	return Decision{Kind: DecisionNoAction, Rationale: rationale}
}
