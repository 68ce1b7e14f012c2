package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"scorecard/api/internal/assist"
	"scorecard/api/internal/auth"
	"scorecard/api/internal/export"
	"scorecard/api/internal/fieldpath"
	"scorecard/api/internal/metrics"
	"scorecard/api/internal/rbac"
	"scorecard/api/internal/store"
	"scorecard/api/internal/workbook"
)

const maxBodyBytes = 4 << 20

type HTTPOptions struct {
	CORSOrigins []string
	Logger      *zap.Logger
	Metrics     *metrics.HTTP
}

type HTTPServer struct {
	service *Service
	opts    HTTPOptions
	logger  *zap.Logger
}

func NewHTTPServer(service *Service, opts HTTPOptions) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &HTTPServer{service: service, opts: opts, logger: logger.Named("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	router.Use(s.observe)

	if s.opts.Metrics != nil {
		router.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/login", s.handleLogin).Methods(http.MethodPost)

	api.HandleFunc("/scorecard", s.require(rbac.ActionRead, s.handleScoreCard)).Methods(http.MethodGet)
	api.HandleFunc("/scorecard/update", s.require(rbac.ActionWrite, s.handleScoreCardUpdate)).Methods(http.MethodPost)
	api.HandleFunc("/scorecard/export", s.require(rbac.ActionRead, s.handleExport)).Methods(http.MethodPost)

	api.HandleFunc("/admin/options/{kind}", s.require(rbac.ActionAdmin, s.handleAdminOptions)).Methods(http.MethodGet)
	api.HandleFunc("/admin/programs/{id}/history", s.require(rbac.ActionAdmin, s.handleProgramHistory)).Methods(http.MethodGet)
	api.HandleFunc("/admin/{table}/bulk-delete", s.require(rbac.ActionAdmin, s.handleAdminBulkDelete)).Methods(http.MethodPost)
	api.HandleFunc("/admin/{table}", s.require(rbac.ActionAdmin, s.handleAdminList)).Methods(http.MethodGet)
	api.HandleFunc("/admin/{table}", s.require(rbac.ActionAdmin, s.handleAdminCreate)).Methods(http.MethodPost)
	api.HandleFunc("/admin/{table}/{id}", s.require(rbac.ActionAdmin, s.handleAdminUpdate)).Methods(http.MethodPut)
	api.HandleFunc("/admin/{table}/{id}", s.require(rbac.ActionAdmin, s.handleAdminDelete)).Methods(http.MethodDelete)

	api.HandleFunc("/alignments/search", s.require(rbac.ActionRead, s.handleAlignmentSearch)).Methods(http.MethodGet)
	api.HandleFunc("/alignments/count", s.require(rbac.ActionRead, s.handleAlignmentCount)).Methods(http.MethodGet)
	api.HandleFunc("/alignments/hierarchy", s.require(rbac.ActionRead, s.handleAlignmentHierarchy)).Methods(http.MethodGet)
	api.HandleFunc("/alignments/bulk", s.require(rbac.ActionWrite, s.handleAlignmentBulkCreate)).Methods(http.MethodPost)
	api.HandleFunc("/alignments/bulk", s.require(rbac.ActionWrite, s.handleAlignmentBulkUpdate)).Methods(http.MethodPut)
	api.HandleFunc("/alignments/bulk", s.require(rbac.ActionWrite, s.handleAlignmentBulkDelete)).Methods(http.MethodDelete)
	api.HandleFunc("/alignments", s.require(rbac.ActionRead, s.handleAlignmentList)).Methods(http.MethodGet)
	api.HandleFunc("/alignments", s.require(rbac.ActionWrite, s.handleAlignmentCreate)).Methods(http.MethodPost)
	api.HandleFunc("/alignments/{id}", s.require(rbac.ActionRead, s.handleAlignmentGet)).Methods(http.MethodGet)
	api.HandleFunc("/alignments/{id}", s.require(rbac.ActionWrite, s.handleAlignmentUpdate)).Methods(http.MethodPut)
	api.HandleFunc("/alignments/{id}", s.require(rbac.ActionWrite, s.handleAlignmentDelete)).Methods(http.MethodDelete)

	api.HandleFunc("/spreadsheet/update", s.require(rbac.ActionWrite, s.handleSpreadsheetUpdate)).Methods(http.MethodPost)
	api.HandleFunc("/ai/chat", s.require(rbac.ActionRead, s.handleChat)).Methods(http.MethodPost)
	api.HandleFunc("/docs/{name}", s.require(rbac.ActionRead, s.handleDoc)).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         600,
	})
	return s.withMiddleware(corsHandler.Handler(router))
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.logger.Info("forbidden",
		zap.String("request_id", requestID(r.Context())),
		zap.String("user", session.UserName),
		zap.String("role", string(session.Role)),
		zap.String("action", string(action)),
		zap.String("path", r.URL.Path),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

// require authenticates the bearer token and checks the role allows action.
func (s *HTTPServer) require(action rbac.Action, next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if !s.service.Can(session.Role, action) {
			s.forbid(w, r, session, action)
			return
		}
		next(w, r, session)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// fail maps err to a response. Unexpected errors are logged with the request
// id and answered with a generic 500.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"role":          session.Role,
		"expiresAt":     session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body LoginInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     session.Token,
		"userName":  session.UserName,
		"role":      session.Role,
		"expiresAt": session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleScoreCard(w http.ResponseWriter, r *http.Request, _ Session) {
	card, err := s.service.GetScoreCard(r.Context(), r.URL.Query().Get("function"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleScoreCardUpdate(w http.ResponseWriter, r *http.Request, session Session) {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var body UpdateRequest
	if err := decodeStrict(raw, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	card, err := s.service.PerformUpdate(r.Context(), body, session.UserName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ Session) {
	var body export.Request
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Export(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSpreadsheetUpdate(w http.ResponseWriter, r *http.Request, _ Session) {
	var body workbook.Update
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	previous, err := s.service.UpdateSpreadsheet(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "previousValue": previous})
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, _ Session) {
	var body assist.Request
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	resp, err := s.service.Chat(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleDoc(w http.ResponseWriter, r *http.Request, _ Session) {
	data, err := s.service.Doc(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

// observe records metrics under the matched route template.
func (s *HTTPServer) observe(next http.Handler) http.Handler {
	if s.opts.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		s.opts.Metrics.Observe(route, r.Method, writer.status, time.Since(started))
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []byte("{}"), nil
	}
	return raw, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var pathErr *fieldpath.Error
	if errors.As(err, &pathErr) {
		return http.StatusBadRequest, pathErr.Code, pathErr.Message, nil
	}
	var dependents *store.DependentsError
	if errors.As(err, &dependents) {
		return http.StatusConflict, "HAS_DEPENDENTS", dependents.Error(), map[string]any{
			"table": dependents.Table,
			"id":    dependents.ID,
			"child": dependents.Child,
			"count": dependents.Count,
		}
	}
	if parent, ok := parentMissing(err); ok {
		return parent.Status, parent.Code, parent.Message, nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrAncestryMismatch):
		return http.StatusConflict, "ANCESTRY_MISMATCH", "The row's parents do not match the requested path", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE", "Duplicate entry", nil
	case errors.Is(err, store.ErrInvalidQuery):
		return http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil
	case errors.Is(err, store.ErrReadOnly):
		return http.StatusMethodNotAllowed, "READ_ONLY", "Table is read-only", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, workbook.ErrRowNotFound):
		return http.StatusNotFound, "ROW_NOT_FOUND", err.Error(), nil
	case errors.Is(err, workbook.ErrUnknownColumn), errors.Is(err, workbook.ErrUnknownSheet),
		errors.Is(err, workbook.ErrMissingID):
		return http.StatusBadRequest, "INVALID_CELL", err.Error(), nil
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound, "NOT_FOUND", "Workbook not found", nil
	case errors.Is(err, assist.ErrUnavailable):
		return http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI assistant is not configured", nil
	case errors.Is(err, assist.ErrUnknownFlow), errors.Is(err, assist.ErrInvalid):
		return http.StatusBadRequest, "INVALID_FLOW", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "INVALID_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, context.Canceled):
		return 499, "CANCELLED", "Request cancelled", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
