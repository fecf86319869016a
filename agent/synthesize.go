package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// synthesizeQueries runs the first inference stage: turn rendered ticket
// context into a handful of short knowledge-base search queries. The stage
// is advisory and never fails the pipeline; anything unusable falls back
// to a single query built from the ticket summary.
func (s *Service) synthesizeQueries(ctx context.Context, summary, ticketContext string) []string {
	fallback := fallbackQueries(summary)

	raw, err := s.llm.Complete(ctx, s.searchTpl.Messages(ticketContext))
	if err != nil {
		s.log.Warn("query synthesis failed, using summary fallback", "error", err)
		return fallback
	}

	queries, ok := parseQueries(raw, s.cfg.MaxQueries)
	if !ok || len(queries) == 0 {
		s.log.Warn("query synthesis returned unusable output, using summary fallback",
			"output_len", len(raw))
		return fallback
	}
	return queries
}

// parseQueries extracts a JSON array of strings from model output,
// tolerating surrounding prose and markdown fences. Queries are trimmed,
// deduplicated case-insensitively and capped at max.
func parseQueries(raw string, max int) ([]string, bool) {
	payload := extractJSON(raw, '[', ']')
	if payload == "" {
		return nil, false
	}

	var parsed []string
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, false
	}

	seen := make(map[string]bool, len(parsed))
	var queries []string
	for _, q := range parsed {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
		if max > 0 && len(queries) == max {
			break
		}
	}
	return queries, true
}

func fallbackQueries(summary string) []string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	return []string{summary}
}

// extractJSON returns the outermost open..close span in raw, stripping
// markdown code fences first. Models wrap JSON in fences and prose often
// enough that strict-from-byte-zero parsing throws away good answers.
func extractJSON(raw string, open, close byte) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if i := strings.LastIndex(raw, "```"); i >= 0 {
			raw = raw[:i]
		}
		raw = strings.TrimSpace(raw)
	}

	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, close)
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
