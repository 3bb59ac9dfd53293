package domain

import (
	"sort"
	"strings"
	"time"
)

// SchemaQuery selects stored schemas. All filters are conjunctive; zero
// values mean "no filter". Name and Source match by case-insensitive
// substring; Search matches name or description the same way.
type SchemaQuery struct {
	ID               string     `json:"id,omitempty"`
	Name             string     `json:"name,omitempty"`
	Protocol         Protocol   `json:"protocol,omitempty"`
	Source           string     `json:"source,omitempty"`
	DiscoveredAfter  *time.Time `json:"discoveredAfter,omitempty"`
	DiscoveredBefore *time.Time `json:"discoveredBefore,omitempty"`
	Search           string     `json:"search,omitempty"`
	// Limit bounds the page size; zero or negative means unbounded.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Matches reports whether the schema passes every filter of the query.
// Pagination fields are not consulted here.
func (q SchemaQuery) Matches(s *UniversalSchema) bool {
	if s == nil {
		return false
	}
	if q.ID != "" && s.ID != q.ID {
		return false
	}
	if q.Name != "" && !containsFold(s.Name, q.Name) {
		return false
	}
	if q.Protocol != "" && s.Protocol != q.Protocol {
		return false
	}
	if q.Source != "" && !containsFold(s.Source, q.Source) {
		return false
	}
	if q.DiscoveredAfter != nil && s.DiscoveredAt.Before(*q.DiscoveredAfter) {
		return false
	}
	if q.DiscoveredBefore != nil && s.DiscoveredAt.After(*q.DiscoveredBefore) {
		return false
	}
	if q.Search != "" && !containsFold(s.Name, q.Search) && !containsFold(s.Description, q.Search) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// QueryResult is one page of matching schemas. TotalCount is the match count
// before pagination; HasMore follows from TotalCount, Offset and Limit.
type QueryResult struct {
	Schemas    []*UniversalSchema `json:"schemas"`
	TotalCount int                `json:"totalCount"`
	HasMore    bool               `json:"hasMore"`
}

// SortNewestFirst orders schemas by descending discovery time. Ties fall
// back to ID so pagination stays stable across calls.
func SortNewestFirst(schemas []*UniversalSchema) {
	sort.SliceStable(schemas, func(i, j int) bool {
		if !schemas[i].DiscoveredAt.Equal(schemas[j].DiscoveredAt) {
			return schemas[i].DiscoveredAt.After(schemas[j].DiscoveredAt)
		}
		return schemas[i].ID < schemas[j].ID
	})
}

// BuildQueryResult sorts the matches newest-first and applies offset/limit.
// Storage backends assemble their Query pages through this.
func BuildQueryResult(matches []*UniversalSchema, offset, limit int) *QueryResult {
	SortNewestFirst(matches)

	total := len(matches)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	page := matches[offset:]
	hasMore := false
	if limit > 0 {
		if len(page) > limit {
			page = page[:limit]
		}
		hasMore = total > offset+limit
	}
	return &QueryResult{
		Schemas:    page,
		TotalCount: total,
		HasMore:    hasMore,
	}
}

// StorageStats summarizes a storage backend's contents. StorageSize is in
// bytes and reported only by backends that can measure it.
type StorageStats struct {
	TotalSchemas      int              `json:"totalSchemas"`
	SchemasByProtocol map[Protocol]int `json:"schemasByProtocol"`
	StorageSize       int64            `json:"storageSize,omitempty"`
	LastUpdated       time.Time        `json:"lastUpdated"`
}
