package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

// Index is a search backend that can also be written to.
type Index interface {
	Searcher
	IndexNodes(records []NodeRecord) error
	DeleteNode(nodeType schema.NodeType, id string) error
}

type nodeLister interface {
	ListNodes(ctx context.Context) ([]store.Node, error)
}

// Service is the facade that tries the index first and falls back to Postgres.
type Service struct {
	index    Index
	fallback Searcher
	nodes    nodeLister
	logger   *zap.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Index, fallback Searcher, nodes nodeLister, logger *zap.Logger) *Service {
	return &Service{index: index, fallback: fallback, nodes: nodes, logger: logger.Named("search")}
}

// Search tries the index if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, err := s.index.Search(ctx, q)
		if err == nil {
			results = nonNil(results)
			return Response{Results: results, Total: len(results), Query: q.Text}
		}
		s.logger.Warn("index error, falling back to postgres", zap.Error(err))
	}

	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results = nonNil(results)
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexNode pushes one node to the index (fire-and-forget).
func (s *Service) IndexNode(node store.Node) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.IndexNodes([]NodeRecord{RecordFromNode(node)}); err != nil {
			s.logger.Warn("index node", zap.String("type", string(node.Type)), zap.String("id", node.ID), zap.Error(err))
		}
	}()
}

// DeleteNode removes a node from the index (fire-and-forget).
func (s *Service) DeleteNode(nodeType schema.NodeType, id string) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.DeleteNode(nodeType, id); err != nil {
			s.logger.Warn("delete node", zap.String("type", string(nodeType)), zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAll loads every node from Postgres and pushes it to the index. It
// returns the number of documents sent.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if s.index == nil || !s.index.Healthy() || s.nodes == nil {
		return 0, nil
	}
	nodes, err := s.nodes.ListNodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load nodes: %w", err)
	}
	records := make([]NodeRecord, 0, len(nodes))
	for _, node := range nodes {
		records = append(records, RecordFromNode(node))
	}
	if err := s.index.IndexNodes(records); err != nil {
		return 0, fmt.Errorf("index nodes: %w", err)
	}
	return len(records), nil
}
