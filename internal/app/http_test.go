package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorecard/api/internal/assist"
	"scorecard/api/internal/auth"
	"scorecard/api/internal/blob"
	"scorecard/api/internal/config"
	"scorecard/api/internal/metrics"
	"scorecard/api/internal/rbac"
	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

const testSecret = "test-secret"

func testConfig() config.Config {
	return config.Config{
		JWTSecret:   testSecret,
		AccessTTL:   time.Hour,
		DefaultRole: "viewer",
	}
}

func newTestServer(t *testing.T, fs *fakeStore, deps Dependencies) (*httptest.Server, *Service) {
	t.Helper()
	service := NewService(testConfig(), fs, deps)
	server := httptest.NewServer(NewHTTPServer(service, HTTPOptions{Metrics: metrics.NewHTTP()}).Handler())
	t.Cleanup(server.Close)
	return server, service
}

func tokenFor(t *testing.T, role rbac.Role) string {
	t.Helper()
	token, _, err := auth.IssueToken([]byte(testSecret), "Avery", string(role), time.Hour)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	payload := map[string]any{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&payload)
	}
	return resp, payload
}

func TestHealthAndReady(t *testing.T) {
	fs := &fakeStore{}
	server, _ := newTestServer(t, fs, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["ok"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, payload = doJSON(t, server, http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", payload["status"])

	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	resp, payload = doJSON(t, server, http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not_ready", payload["status"])
}

func TestLoginChecksConfiguredHash(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	cfg := testConfig()
	cfg.EditorPasswordHash = hash
	service := NewService(cfg, &fakeStore{}, Dependencies{})
	server := httptest.NewServer(NewHTTPServer(service, HTTPOptions{}).Handler())
	defer server.Close()

	resp, payload := doJSON(t, server, http.MethodPost, "/api/session/login", "", map[string]any{
		"name": "Avery", "password": "wrong", "role": "editor",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", payload["code"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/session/login", "", map[string]any{
		"name": "Avery", "password": "hunter2", "role": "editor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "editor", payload["role"])
	token, _ := payload["token"].(string)
	require.NotEmpty(t, token)

	resp, payload = doJSON(t, server, http.MethodGet, "/api/session", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["authenticated"])
	assert.Equal(t, "Avery", payload["userName"])
}

func TestLoginViewerNeedsOnlyName(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodPost, "/api/session/login", "", map[string]any{"name": "Sam"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "viewer", payload["role"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/session/login", "", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])
}

func TestRequiresToken(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodGet, "/api/scorecard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", payload["code"])

	resp, _ = doJSON(t, server, http.MethodGet, "/api/scorecard", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerCannotWrite(t *testing.T) {
	called := false
	fs := &fakeStore{
		applyFieldUpdateFn: func(context.Context, store.FieldUpdate) error {
			called = true
			return nil
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})
	viewer := tokenFor(t, rbac.RoleViewer)

	resp, payload := doJSON(t, server, http.MethodPost, "/api/scorecard/update", viewer, map[string]any{
		"updateType": "program", "fieldPath": []string{"p1", "c1", "g1", "prog-1"}, "newValue": "delayed", "quarter": "q2",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", payload["code"])
	assert.False(t, called)

	resp, _ = doJSON(t, server, http.MethodGet, "/api/admin/pillars", tokenFor(t, rbac.RoleEditor), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestScoreCardUpdateWritesQuarterStatus(t *testing.T) {
	var got store.FieldUpdate
	fs := &fakeStore{
		applyFieldUpdateFn: func(_ context.Context, update store.FieldUpdate) error {
			got = update
			return nil
		},
		snapshotFn: func(context.Context, string) (store.Snapshot, error) {
			return store.Snapshot{
				Pillars:  []store.Pillar{{ID: "p1", Name: "Growth", Function: schema.OrdFunction}},
				Programs: []store.Program{},
			}, nil
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodPost, "/api/scorecard/update", tokenFor(t, rbac.RoleEditor), map[string]any{
		"updateType": "program", "fieldPath": []string{"p1", "c1", "g1", "prog-1"}, "newValue": "Delayed", "quarter": "q2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.TablePrograms, got.Table)
	assert.Equal(t, store.Column("q2_status"), got.Column)
	assert.Equal(t, "prog-1", got.ID)
	assert.Equal(t, store.Ancestry{PillarID: "p1", CategoryID: "c1", GoalID: "g1"}, got.Ancestry)
	assert.Equal(t, "delayed", got.Value)
	assert.Equal(t, "Avery", got.Actor)
	assert.Len(t, payload["pillars"], 1)
}

func TestScoreCardUpdateErrors(t *testing.T) {
	fs := &fakeStore{
		applyFieldUpdateFn: func(context.Context, store.FieldUpdate) error { return store.ErrAncestryMismatch },
	}
	server, _ := newTestServer(t, fs, Dependencies{})
	editor := tokenFor(t, rbac.RoleEditor)

	resp, payload := doJSON(t, server, http.MethodPost, "/api/scorecard/update", editor, map[string]any{
		"updateType": "program", "fieldPath": []string{"p1", "c1", "g1", "prog-1"}, "newValue": "delayed", "quarter": "q9",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_QUARTER", payload["code"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/scorecard/update", editor, map[string]any{
		"updateType": "program", "fieldPath": []string{"p1", "c1", "g1", "prog-1"}, "newValue": "delayed", "quarter": "q1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ANCESTRY_MISMATCH", payload["code"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/scorecard/update", editor, `{"updateType":"program","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", payload["code"])
}

func TestAdminListPassesQueryThrough(t *testing.T) {
	var got store.PageQuery
	fs := &fakeStore{
		paginateFn: func(_ context.Context, q store.PageQuery) (store.Page, error) {
			got = q
			return store.Page{
				Rows:       []map[string]any{{"id": "goal-001", "text": "Grow"}},
				Total:      41,
				Page:       3,
				Limit:      20,
				TotalPages: 3,
			}, nil
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodGet,
		"/api/admin/goals?page=3&limit=20&sortColumn=text&sortDirection=desc&search=grow&searchColumns=text,%20comments",
		tokenFor(t, rbac.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.PageQuery{
		Table: "goals", Page: 3, Limit: 20, SortColumn: "text", SortDirection: "desc",
		Search: "grow", SearchColumns: []string{"text", "comments"},
	}, got)
	assert.EqualValues(t, 41, payload["total"])
	assert.EqualValues(t, 3, payload["totalPages"])
	assert.Len(t, payload["data"], 1)

	resp, payload = doJSON(t, server, http.MethodGet, "/api/admin/users", tokenFor(t, rbac.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_TABLE", payload["code"])
}

func TestAdminCreateRejectsUnknownFields(t *testing.T) {
	var created store.PillarInput
	fs := &fakeStore{
		createPillarFn: func(_ context.Context, in store.PillarInput) (store.Pillar, error) {
			created = in
			return store.Pillar{ID: "pillar-9", Name: in.Name, Function: in.Function}, nil
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})
	admin := tokenFor(t, rbac.RoleAdmin)

	resp, payload := doJSON(t, server, http.MethodPost, "/api/admin/pillars", admin, `{"name":"Growth","owner":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", payload["code"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/admin/pillars", admin, `{"function":"ORD"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/admin/pillars", admin, `{"name":" Growth ","function":"ORD"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Growth", created.Name)
	assert.Equal(t, "pillar-9", payload["id"])
}

func TestAdminDeleteWithDependents(t *testing.T) {
	fs := &fakeStore{
		deleteFn: func(_ context.Context, table, id string) error {
			return &store.DependentsError{Table: store.Table(table), ID: id, Child: store.TableGoals, Count: 2}
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodDelete, "/api/admin/categories/cat-001", tokenFor(t, rbac.RoleAdmin), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "HAS_DEPENDENTS", payload["code"])
	details, ok := payload["details"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, details["count"])
}

func TestAdminBulkDeleteAndOptions(t *testing.T) {
	fs := &fakeStore{
		bulkDeleteFn: func(_ context.Context, table string, ids []string) (int64, error) {
			return int64(len(ids)), nil
		},
		listOptionsFn: func(_ context.Context, kind schema.NodeType, parentID string) ([]store.Option, error) {
			assert.Equal(t, schema.NodeCategory, kind)
			assert.Equal(t, "pillar-001", parentID)
			return []store.Option{{ID: "cat-001", Label: "Revenue"}}, nil
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})
	admin := tokenFor(t, rbac.RoleAdmin)

	resp, payload := doJSON(t, server, http.MethodPost, "/api/admin/goals/bulk-delete", admin, map[string]any{"ids": []string{"g1", "g2"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, payload["deleted"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/admin/goals/bulk-delete", admin, map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])

	resp, payload = doJSON(t, server, http.MethodGet, "/api/admin/options/categories?pillarId=pillar-001", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, payload["options"], 1)

	resp, payload = doJSON(t, server, http.MethodGet, "/api/admin/options/users", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_KIND", payload["code"])
}

func TestReadOnlyHistoryTable(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodPost, "/api/admin/progress_update_history", tokenFor(t, rbac.RoleAdmin), `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "READ_ONLY", payload["code"])
}

func TestProgramHistory(t *testing.T) {
	changedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		nodeByIDFn: func(_ context.Context, nodeType schema.NodeType, id string) (store.Node, error) {
			if nodeType == schema.NodeProgram && id == "prog-001" {
				return store.Node{ID: id, Type: schema.NodeProgram}, nil
			}
			return store.Node{}, sql.ErrNoRows
		},
		historyFn: func(_ context.Context, programID string) ([]store.ProgressUpdate, error) {
			return []store.ProgressUpdate{{
				ID: 7, ProgramID: programID, Field: "q1_progress",
				PreviousValue: "", NewValue: "Kickoff done", ChangedBy: "Avery", ChangedAt: changedAt,
			}}, nil
		},
	}
	server, _ := newTestServer(t, fs, Dependencies{})
	admin := tokenFor(t, rbac.RoleAdmin)

	resp, payload := doJSON(t, server, http.MethodGet, "/api/admin/programs/prog-001/history", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := payload["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "q1_progress", entry["field"])
	assert.Equal(t, "Kickoff done", entry["newValue"])
	assert.Equal(t, "Avery", entry["changedBy"])

	resp, payload = doJSON(t, server, http.MethodGet, "/api/admin/programs/prog-404/history", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", payload["code"])

	resp, _ = doJSON(t, server, http.MethodGet, "/api/admin/programs/prog-001/history", tokenFor(t, rbac.RoleEditor), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type fakeAssistant struct {
	got assist.Request
}

func (f *fakeAssistant) Chat(_ context.Context, req assist.Request) (assist.Response, error) {
	f.got = req
	return assist.Response{Flow: req.Flow, Reply: "ok"}, nil
}

func TestCompareGoalsLoadsGoalContext(t *testing.T) {
	fs := &fakeStore{
		snapshotFn: func(context.Context, string) (store.Snapshot, error) {
			return store.Snapshot{
				Pillars:    []store.Pillar{{ID: "p1", Name: "Growth", Function: schema.OrdFunction}},
				Categories: []store.Category{{ID: "c1", Name: "Revenue", PillarID: "p1"}},
				Goals: []store.Goal{
					{ID: "g1", Text: "Grow revenue", CategoryID: "c1", PillarID: "p1"},
					{ID: "g2", Text: "Cut churn", CategoryID: "c1", PillarID: "p1"},
					{ID: "g3", Text: "Hire", CategoryID: "c1", PillarID: "p1"},
				},
			}, nil
		},
	}
	ai := &fakeAssistant{}
	server, _ := newTestServer(t, fs, Dependencies{Assist: ai})
	viewer := tokenFor(t, rbac.RoleViewer)

	resp, _ := doJSON(t, server, http.MethodPost, "/api/ai/chat", viewer, map[string]any{
		"flow": "compare-goals", "goalIds": []string{"g1", "g2"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sent struct {
		Goals []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"goals"`
	}
	require.NoError(t, json.Unmarshal(ai.got.Context, &sent))
	require.Len(t, sent.Goals, 2)
	assert.Equal(t, "Grow revenue", sent.Goals[0].Text)
	assert.Equal(t, "g2", sent.Goals[1].ID)

	resp, payload := doJSON(t, server, http.MethodPost, "/api/ai/chat", viewer, map[string]any{
		"flow": "compare-goals", "goalIds": []string{"g1", "g9"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", payload["code"])
}

func TestDocsAllowlist(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alignment-guide.md"), []byte("# Alignments\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.md"), []byte("nope"), 0o600))
	server, _ := newTestServer(t, &fakeStore{}, Dependencies{Docs: blob.NewDir(dir)})
	viewer := tokenFor(t, rbac.RoleViewer)

	resp, _ := doJSON(t, server, http.MethodGet, "/api/docs/alignment-guide.md", viewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, _ = doJSON(t, server, http.MethodGet, "/api/docs/secret.md", viewer, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodGet, "/api/docs/ai-flows.md", viewer, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOptionalFeaturesReportUnavailable(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{}, Dependencies{})

	resp, payload := doJSON(t, server, http.MethodPost, "/api/ai/chat", tokenFor(t, rbac.RoleViewer), map[string]any{"flow": "chat", "message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "AI_UNAVAILABLE", payload["code"])

	resp, payload = doJSON(t, server, http.MethodPost, "/api/scorecard/export", tokenFor(t, rbac.RoleViewer), map[string]any{"format": "xlsx"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "EXPORT_UNAVAILABLE", payload["code"])

	resp, _ = doJSON(t, server, http.MethodPost, "/api/spreadsheet/update", tokenFor(t, rbac.RoleEditor), map[string]any{
		"sheet": "goals", "id": "goal-001", "column": "Text", "value": "x",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	fs := &fakeStore{
		deleteFn: func(context.Context, string, string) error { return sql.ErrNoRows },
	}
	server, _ := newTestServer(t, fs, Dependencies{})

	resp, _ := doJSON(t, server, http.MethodDelete, "/api/admin/goals/goal-404", tokenFor(t, rbac.RoleAdmin), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `route="/api/admin/{table}/{id}"`)
	assert.NotContains(t, buf.String(), "goal-404")
}
