package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"scorecard/api/internal/schema"
)

const idxNodes = "scorecard_nodes"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the node index. An
// unreachable server is not an error; the health loop keeps probing it.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger.Named("meili"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxNodes,
		PrimaryKey: "key",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxNodes), zap.Error(err))
	}

	index := m.client.Index(idxNodes)
	filterable := []interface{}{"type", "side", "function", "key"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attrs", zap.Error(err))
	}
	searchable := []string{"label", "nodeId"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attrs", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	var filters []string
	if q.Side != "" {
		filters = append(filters, fmt.Sprintf("side = %q", q.Side))
	}
	if q.ExcludeID != "" {
		if q.ExcludeType != "" {
			filters = append(filters, fmt.Sprintf("key != %q", recordKey(q.ExcludeType, q.ExcludeID)))
		} else {
			filters = append(filters, fmt.Sprintf("nodeId != %q", q.ExcludeID))
		}
	}

	request := &meili.SearchRequest{
		IndexUID: idxNodes,
		Query:    q.Text,
		Limit:    int64(q.limit()),
	}
	if len(filters) > 0 {
		request.Filter = strings.Join(filters, " AND ")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{request},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, nil
}

func hitToResult(hit meili.Hit) Result {
	function := decodeString(hit, "function")
	return Result{
		Type:     schema.NodeType(decodeString(hit, "type")),
		ID:       decodeString(hit, "nodeId"),
		Label:    decodeString(hit, "label"),
		Function: function,
		PillarID: decodeString(hit, "pillarId"),
		Side:     SideOf(function),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexNodes adds or replaces node documents.
func (m *Meili) IndexNodes(records []NodeRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxNodes).AddDocuments(records, nil)
	return err
}

// DeleteNode removes one node document.
func (m *Meili) DeleteNode(nodeType schema.NodeType, id string) error {
	_, err := m.client.Index(idxNodes).DeleteDocument(recordKey(nodeType, id), nil)
	return err
}
