package agent

import (
	"context"
	"sort"
	"sync"

	"github.com/hazyhaar/scribe/confluence"
	"github.com/hazyhaar/scribe/prompt"
)

// candidate is one knowledge-base page surfaced by retrieval, with the
// page body fetched and converted to markdown for the decision prompt.
// Version is the page version at fetch time; updates write against it.
type candidate struct {
	Result   confluence.SearchResult
	Version  int
	Markdown string
}

// retrieve runs one search per query with bounded concurrency, merges the
// results by page ID keeping the best score, caps the set at TopK and
// fetches the surviving pages' bodies. Retrieval failures for individual
// queries or pages degrade the candidate set instead of failing the
// pipeline; an empty set is a valid outcome.
func (s *Service) retrieve(ctx context.Context, queries []string) []candidate {
	if s.kb == nil {
		return nil
	}

	type hit struct {
		result confluence.SearchResult
		order  int
	}

	var (
		mu     sync.Mutex
		merged = make(map[string]hit)
		order  int
	)

	fanOut := s.cfg.SearchFanOut
	if fanOut <= 0 {
		fanOut = 1
	}
	sem := make(chan struct{}, fanOut)
	var wg sync.WaitGroup

	for _, q := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results, err := s.kb.Search(ctx, q, s.cfg.TopK)
			if err != nil {
				s.log.Warn("knowledge search failed", "query", q, "error", err)
				return
			}
			mu.Lock()
			for _, r := range results {
				prev, ok := merged[r.PageID]
				if !ok {
					merged[r.PageID] = hit{result: r, order: order}
					order++
					continue
				}
				if r.Score > prev.result.Score {
					prev.result = r
					merged[r.PageID] = prev
				}
			}
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	hits := make([]hit, 0, len(merged))
	for _, h := range merged {
		hits = append(hits, h)
	}
	// Best score first; insertion order breaks ties deterministically.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].result.Score != hits[j].result.Score {
			return hits[i].result.Score > hits[j].result.Score
		}
		return hits[i].order < hits[j].order
	})
	if s.cfg.TopK > 0 && len(hits) > s.cfg.TopK {
		hits = hits[:s.cfg.TopK]
	}

	var candidates []candidate
	for _, h := range hits {
		page, err := s.kb.GetPage(ctx, h.result.PageID)
		if err != nil {
			s.log.Warn("candidate page fetch failed",
				"page_id", h.result.PageID, "title", h.result.Title, "error", err)
			continue
		}
		candidates = append(candidates, candidate{
			Result:   h.result,
			Version:  page.Version,
			Markdown: confluence.StorageToMarkdown(page.Body, h.result.Snippet),
		})
	}
	return candidates
}

func articlesOf(candidates []candidate) []prompt.Article {
	articles := make([]prompt.Article, 0, len(candidates))
	for _, c := range candidates {
		articles = append(articles, prompt.Article{
			PageID:  c.Result.PageID,
			Title:   c.Result.Title,
			URL:     c.Result.URL,
			Content: c.Markdown,
		})
	}
	return articles
}
