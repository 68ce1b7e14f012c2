// Package search finds hierarchy nodes by label for the alignment picker.
// Meilisearch serves queries while it is healthy; Postgres ILIKE is the
// fallback.
package search

import (
	"context"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

// Side is the hierarchy a node belongs to.
type Side string

const (
	SideOrd        Side = "ord"
	SideFunctional Side = "functional"
)

func SideOf(function string) Side {
	if schema.IsOrd(function) {
		return SideOrd
	}
	return SideFunctional
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type     schema.NodeType `json:"type"`
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	Function string          `json:"function"`
	PillarID string          `json:"pillarId"`
	Side     Side            `json:"side"`
}

// Query describes a search request.
type Query struct {
	Text        string
	Side        Side // empty = both hierarchies
	ExcludeType schema.NodeType
	ExcludeID   string
	Limit       int
}

func (q Query) excludes(nodeType schema.NodeType, id string) bool {
	return q.ExcludeID != "" && q.ExcludeID == id && (q.ExcludeType == "" || q.ExcludeType == nodeType)
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a node search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, error)
	Healthy() bool
}

// NodeRecord is the document stored in the Meilisearch index.
type NodeRecord struct {
	Key      string `json:"key"`
	NodeID   string `json:"nodeId"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	Function string `json:"function"`
	PillarID string `json:"pillarId"`
	Side     string `json:"side"`
}

func recordKey(nodeType schema.NodeType, id string) string {
	return string(nodeType) + "_" + id
}

// RecordFromNode converts a store node to its index document.
func RecordFromNode(node store.Node) NodeRecord {
	return NodeRecord{
		Key:      recordKey(node.Type, node.ID),
		NodeID:   node.ID,
		Type:     string(node.Type),
		Label:    node.Label,
		Function: node.Function,
		PillarID: node.PillarID,
		Side:     string(SideOf(node.Function)),
	}
}

func resultFromNode(node store.Node) Result {
	return Result{
		Type:     node.Type,
		ID:       node.ID,
		Label:    node.Label,
		Function: node.Function,
		PillarID: node.PillarID,
		Side:     SideOf(node.Function),
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
