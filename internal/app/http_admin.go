package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"scorecard/api/internal/store"
)

func (s *HTTPServer) handleAdminList(w http.ResponseWriter, r *http.Request, _ Session) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	result, err := s.service.ListTable(r.Context(), store.PageQuery{
		Table:         mux.Vars(r)["table"],
		Page:          page,
		Limit:         limit,
		SortColumn:    query.Get("sortColumn"),
		SortDirection: query.Get("sortDirection"),
		Search:        query.Get("search"),
		SearchColumns: splitList(query.Get("searchColumns")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAdminCreate(w http.ResponseWriter, r *http.Request, session Session) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	row, err := s.service.CreateRow(r.Context(), mux.Vars(r)["table"], raw, session.UserName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *HTTPServer) handleAdminUpdate(w http.ResponseWriter, r *http.Request, session Session) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	vars := mux.Vars(r)
	row, err := s.service.UpdateRow(r.Context(), vars["table"], vars["id"], raw, session.UserName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *HTTPServer) handleAdminDelete(w http.ResponseWriter, r *http.Request, _ Session) {
	vars := mux.Vars(r)
	if err := s.service.DeleteRow(r.Context(), vars["table"], vars["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAdminBulkDelete(w http.ResponseWriter, r *http.Request, _ Session) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var body BulkDeleteInput
	if err := decodeStrict(raw, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.service.BulkDeleteRows(r.Context(), mux.Vars(r)["table"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// optionParents names the query parameter that filters each option kind.
var optionParents = map[string]string{
	"categories": "pillarId",
	"goals":      "categoryId",
	"programs":   "goalId",
}

func (s *HTTPServer) handleAdminOptions(w http.ResponseWriter, r *http.Request, _ Session) {
	kind := mux.Vars(r)["kind"]
	query := r.URL.Query()
	parentID := query.Get("parentId")
	if parentID == "" {
		parentID = query.Get(optionParents[kind])
	}
	options, err := s.service.Options(r.Context(), kind, parentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": options})
}

func (s *HTTPServer) handleProgramHistory(w http.ResponseWriter, r *http.Request, _ Session) {
	history, err := s.service.ProgramHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *HTTPServer) handleAlignmentList(w http.ResponseWriter, r *http.Request, _ Session) {
	query := r.URL.Query()
	items, err := s.service.ListAlignments(r.Context(), query.Get("itemType"), query.Get("itemId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alignments": items})
}

func (s *HTTPServer) handleAlignmentCount(w http.ResponseWriter, r *http.Request, _ Session) {
	query := r.URL.Query()
	count, err := s.service.CountAlignments(r.Context(), query.Get("itemType"), query.Get("itemId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *HTTPServer) handleAlignmentSearch(w http.ResponseWriter, r *http.Request, _ Session) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	resp, err := s.service.SearchTargets(r.Context(), TargetQuery{
		Term:        query.Get("q"),
		Side:        query.Get("side"),
		ExcludeType: query.Get("excludeType"),
		ExcludeID:   query.Get("excludeId"),
		Limit:       limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleAlignmentHierarchy(w http.ResponseWriter, r *http.Request, _ Session) {
	tree, err := s.service.AlignmentHierarchy(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *HTTPServer) handleAlignmentCreate(w http.ResponseWriter, r *http.Request, session Session) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var body AlignmentCreate
	if err := decodeStrict(raw, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := s.service.CreateAlignment(r.Context(), body, session.UserName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *HTTPServer) handleAlignmentGet(w http.ResponseWriter, r *http.Request, _ Session) {
	row, err := s.service.GetAlignment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *HTTPServer) handleAlignmentUpdate(w http.ResponseWriter, r *http.Request, _ Session) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var body AlignmentUpdate
	if err := decodeStrict(raw, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := s.service.UpdateAlignment(r.Context(), mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *HTTPServer) handleAlignmentDelete(w http.ResponseWriter, r *http.Request, _ Session) {
	if err := s.service.DeleteAlignment(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkItems struct {
	Items []json.RawMessage `json:"items"`
}

type bulkIDs struct {
	IDs []string `json:"ids"`
}

func (s *HTTPServer) handleAlignmentBulkCreate(w http.ResponseWriter, r *http.Request, session Session) {
	var body bulkItems
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.BulkCreateAlignments(r.Context(), body.Items, session.UserName))
}

func (s *HTTPServer) handleAlignmentBulkUpdate(w http.ResponseWriter, r *http.Request, _ Session) {
	var body bulkItems
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.BulkUpdateAlignments(r.Context(), body.Items))
}

func (s *HTTPServer) handleAlignmentBulkDelete(w http.ResponseWriter, r *http.Request, _ Session) {
	var body bulkIDs
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.BulkDeleteAlignments(r.Context(), body.IDs))
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
