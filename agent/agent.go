// Package agent is the resolved-ticket documentation service: a poll loop
// over the issue tracker, a two-stage inference pipeline (search-query
// synthesis, then a documentation decision grounded in wiki search
// results), and an executor that logs or applies the decision. A SQLite
// ledger makes processing at-most-once per ticket.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/scribe/agent/internal/ledger"
	"github.com/hazyhaar/scribe/confluence"
	"github.com/hazyhaar/scribe/idgen"
	"github.com/hazyhaar/scribe/jira"
	"github.com/hazyhaar/scribe/llm"
	"github.com/hazyhaar/scribe/prompt"
)

// Completer is the inference surface the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// TicketSource lists and fetches tracker tickets.
type TicketSource interface {
	ListResolved(ctx context.Context, since, until time.Time) ([]jira.Stub, error)
	Get(ctx context.Context, key string) (*jira.Ticket, error)
	Download(ctx context.Context, att jira.Attachment, maxBytes int64) ([]byte, error)
}

// Knowledge searches and writes the wiki.
type Knowledge interface {
	Space() string
	Search(ctx context.Context, query string, limit int) ([]confluence.SearchResult, error)
	GetPage(ctx context.Context, id string) (*confluence.Page, error)
	FindByTitle(ctx context.Context, title string) (*confluence.Page, error)
	CreatePage(ctx context.Context, title, body string) (*confluence.Page, error)
	UpdatePage(ctx context.Context, id, title, body string, version int, comment string) (*confluence.Page, error)
}

// Deps are the collaborators a Service runs against. DB holds the ledger;
// the service applies the ledger schema on construction.
type Deps struct {
	LLM           Completer
	Tickets       TicketSource
	KB            Knowledge
	DB            *sql.DB
	SearchPrompt  *prompt.Template
	AnalyzePrompt *prompt.Template
}

// Service wires the scheduler, pipeline and executor together.
type Service struct {
	cfg       Config
	log       *slog.Logger
	llm       Completer
	tickets   TicketSource
	kb        Knowledge
	ledger    *ledger.Ledger
	searchTpl *prompt.Template
	analyzTpl *prompt.Template

	ids       idgen.Generator
	now       func() time.Time
	startedAt time.Time
}

// New builds a Service. All collaborators are required except Tickets and
// KB writes in static mode, which the caller decides by what it passes.
func New(cfg Config, log *slog.Logger, deps Deps) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.LLM == nil {
		return nil, errors.New("agent: llm completer required")
	}
	if deps.DB == nil {
		return nil, errors.New("agent: ledger database required")
	}
	if deps.SearchPrompt == nil || deps.AnalyzePrompt == nil {
		return nil, errors.New("agent: prompt templates required")
	}
	if cfg.StaticTicketsPath == "" && (deps.Tickets == nil || deps.KB == nil) {
		return nil, errors.New("agent: ticket source and knowledge base required outside static mode")
	}
	if err := ledger.ApplySchema(deps.DB); err != nil {
		return nil, fmt.Errorf("agent: ledger schema: %w", err)
	}
	return &Service{
		cfg:       cfg,
		log:       log.With("component", "agent"),
		llm:       deps.LLM,
		tickets:   deps.Tickets,
		kb:        deps.KB,
		ledger:    ledger.New(deps.DB),
		searchTpl: deps.SearchPrompt,
		analyzTpl: deps.AnalyzePrompt,
		ids:       idgen.Prefixed("cyc_", idgen.NanoID(10)),
		now:       time.Now,
		startedAt: time.Now(),
	}, nil
}

// Status is the snapshot served by the status API and MCP tool.
type Status struct {
	UptimeSeconds int64          `json:"uptime_seconds"`
	PollInterval  string         `json:"poll_interval"`
	Lookback      string         `json:"lookback"`
	AutoSubmit    bool           `json:"auto_submit"`
	Reprocess     bool           `json:"reprocess"`
	StaticMode    bool           `json:"static_mode"`
	Ledger        map[string]int `json:"ledger"`
}

// Status reports the current service state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		PollInterval:  s.cfg.PollInterval().String(),
		Lookback:      s.cfg.Lookback().String(),
		AutoSubmit:    s.cfg.AutoSubmit,
		Reprocess:     s.cfg.Reprocess,
		StaticMode:    s.cfg.StaticTicketsPath != "",
		Ledger:        stats,
	}, nil
}

// Processed returns recent ledger records for the API surfaces.
func (s *Service) Processed(ctx context.Context, limit int) ([]*ledger.Record, error) {
	return s.ledger.List(ctx, limit)
}
