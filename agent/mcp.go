package agent

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the agent tools on an MCP server, mirroring the
// HTTP API operations.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatus(srv)
	s.registerProcessed(srv)
	s.registerProcessTicket(srv)
	s.registerSearchKB(srv)
}

func (s *Service) registerStatus(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "scribe_status",
		Description: "Get agent status: uptime, poll settings, ledger counts",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, _ req) (*mcp.CallToolResult, *Status, error) {
		status, err := s.Status(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, status, nil
	})
}

func (s *Service) registerProcessed(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit,omitempty" jsonschema:"max records to return"`
	}
	type rec struct {
		TicketKey    string `json:"ticket_key"`
		Outcome      string `json:"outcome"`
		DecisionKind string `json:"decision_kind,omitempty"`
		AttemptCount int    `json:"attempt_count"`
		LastError    string `json:"last_error,omitempty"`
	}
	type resp struct {
		Records []rec `json:"records"`
	}

	tool := &mcp.Tool{
		Name:        "scribe_processed",
		Description: "List recently processed tickets and their outcomes",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in req) (*mcp.CallToolResult, resp, error) {
		records, err := s.Processed(ctx, in.Limit)
		if err != nil {
			return nil, resp{}, err
		}
		out := resp{Records: make([]rec, 0, len(records))}
		for _, r := range records {
			out.Records = append(out.Records, rec{
				TicketKey:    r.TicketKey,
				Outcome:      r.Outcome,
				DecisionKind: r.DecisionKind,
				AttemptCount: r.AttemptCount,
				LastError:    r.LastError,
			})
		}
		return nil, out, nil
	})
}

func (s *Service) registerProcessTicket(srv *mcp.Server) {
	type req struct {
		Key string `json:"key" jsonschema:"ticket key, e.g. OPS-123"`
	}
	type resp struct {
		Decision  string `json:"decision"`
		Updates   int    `json:"updates,omitempty"`
		Title     string `json:"title,omitempty"`
		Rationale string `json:"rationale"`
	}

	tool := &mcp.Tool{
		Name:        "scribe_process_ticket",
		Description: "Run the documentation pipeline for one ticket immediately, bypassing the ledger filter",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in req) (*mcp.CallToolResult, resp, error) {
		if s.tickets == nil {
			return nil, resp{}, errors.New("no ticket source in static mode")
		}
		decision, err := s.ProcessKey(ctx, in.Key)
		if err != nil {
			return nil, resp{}, err
		}
		return nil, resp{
			Decision:  string(decision.Kind),
			Updates:   len(decision.Updates),
			Title:     decision.Title,
			Rationale: decision.Rationale,
		}, nil
	})
}

func (s *Service) registerSearchKB(srv *mcp.Server) {
	type req struct {
		Query string `json:"query" jsonschema:"search query"`
		Limit int    `json:"limit,omitempty" jsonschema:"max results"`
	}
	type result struct {
		PageID  string  `json:"page_id"`
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Snippet string  `json:"snippet,omitempty"`
		Score   float64 `json:"score"`
	}
	type resp struct {
		Results []result `json:"results"`
	}

	tool := &mcp.Tool{
		Name:        "scribe_search_kb",
		Description: "Search the knowledge base the way the pipeline does",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in req) (*mcp.CallToolResult, resp, error) {
		if s.kb == nil {
			return nil, resp{}, errors.New("no knowledge base in static mode")
		}
		limit := in.Limit
		if limit <= 0 {
			limit = s.cfg.TopK
		}
		results, err := s.kb.Search(ctx, in.Query, limit)
		if err != nil {
			return nil, resp{}, err
		}
		out := resp{Results: make([]result, 0, len(results))}
		for _, r := range results {
			out.Results = append(out.Results, result{
				PageID:  r.PageID,
				Title:   r.Title,
				URL:     r.URL,
				Snippet: r.Snippet,
				Score:   r.Score,
			})
		}
		return nil, out, nil
	})
}
