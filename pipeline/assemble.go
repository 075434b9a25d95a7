package pipeline

import (
	"sort"

	"github.com/use-agent/pricescout/models"
)

// Assemble deduplicates records by link (first occurrence wins), sorts them
// by ascending price keeping the extraction order for ties, and truncates
// to limit. The input slice is not modified.
func Assemble(query string, records []models.ProductRecord, limit int) *models.PipelineOutcome {
	seen := make(map[string]struct{}, len(records))
	results := make([]models.ProductRecord, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.Link]; dup {
			continue
		}
		seen[rec.Link] = struct{}{}
		results = append(results, rec)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Price < results[j].Price
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return &models.PipelineOutcome{
		Query:   query,
		Count:   len(results),
		Results: results,
	}
}
