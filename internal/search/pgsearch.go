package search

import (
	"context"
	"strings"

	"scorecard/api/internal/store"
)

type nodeSource interface {
	SearchNodes(ctx context.Context, term string, limit int) ([]store.Node, error)
}

// Postgres implements Searcher with ILIKE over the hierarchy tables.
type Postgres struct {
	nodes nodeSource
}

func NewPostgres(nodes nodeSource) *Postgres {
	return &Postgres{nodes: nodes}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	limit := q.limit()
	// Over-fetch by one so an excluded node does not shorten the page.
	nodes, err := p.nodes.SearchNodes(ctx, strings.TrimSpace(q.Text), limit+1)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		if q.excludes(node.Type, node.ID) {
			continue
		}
		result := resultFromNode(node)
		if q.Side != "" && result.Side != q.Side {
			continue
		}
		results = append(results, result)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
