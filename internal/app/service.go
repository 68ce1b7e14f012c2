package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"scorecard/api/internal/assist"
	"scorecard/api/internal/auth"
	"scorecard/api/internal/blob"
	"scorecard/api/internal/config"
	"scorecard/api/internal/export"
	"scorecard/api/internal/fieldpath"
	"scorecard/api/internal/hierarchy"
	"scorecard/api/internal/rbac"
	"scorecard/api/internal/schema"
	"scorecard/api/internal/search"
	"scorecard/api/internal/store"
	"scorecard/api/internal/workbook"
)

type Session struct {
	Token     string
	UserName  string
	Role      rbac.Role
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(context.Context) error
	Snapshot(context.Context, string) (store.Snapshot, error)
	ApplyFieldUpdate(context.Context, store.FieldUpdate) error
	NodeByID(context.Context, schema.NodeType, string) (store.Node, error)
	ProgressHistory(context.Context, string) ([]store.ProgressUpdate, error)

	Paginate(context.Context, store.PageQuery) (store.Page, error)
	CreatePillar(context.Context, store.PillarInput) (store.Pillar, error)
	CreateCategory(context.Context, store.CategoryInput) (store.Category, error)
	CreateGoal(context.Context, store.GoalInput) (store.Goal, error)
	CreateProgram(context.Context, store.ProgramInput) (store.Program, error)
	UpdatePillar(context.Context, string, store.PillarPatch) (store.Pillar, error)
	UpdateCategory(context.Context, string, store.CategoryPatch) (store.Category, error)
	UpdateGoal(context.Context, string, store.GoalPatch) (store.Goal, error)
	UpdateProgram(context.Context, string, store.ProgramPatch, string) (store.Program, error)
	Delete(context.Context, string, string) error
	BulkDelete(context.Context, string, []string) (int64, error)
	ListOptions(context.Context, schema.NodeType, string) ([]store.Option, error)

	CreateAlignment(context.Context, store.AlignmentInput) (store.Alignment, error)
	GetAlignment(context.Context, string) (store.Alignment, error)
	UpdateAlignment(context.Context, string, store.AlignmentPatch) (store.Alignment, error)
	DeleteAlignment(context.Context, string) error
	AlignmentsForNode(context.Context, schema.NodeType, string) ([]store.Alignment, error)
	ListAlignments(context.Context) ([]store.Alignment, error)
	CountAlignments(context.Context, schema.NodeType, string) (int, error)
}

type nodeSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexNode(node store.Node)
	DeleteNode(nodeType schema.NodeType, id string)
	ReindexAll(ctx context.Context) (int, error)
}

type assistant interface {
	Chat(ctx context.Context, req assist.Request) (assist.Response, error)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type workbookEditor interface {
	Apply(update workbook.Update) (string, error)
}

// Dependencies are the optional collaborators of the service. Nil members
// disable the features that need them.
type Dependencies struct {
	Search   nodeSearch
	Assist   assistant
	Exporter exporter
	Workbook workbookEditor
	Docs     blob.Store
	Logger   *zap.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	search   nodeSearch
	assist   assistant
	exporter exporter
	workbook workbookEditor
	docs     blob.Store
	validate *validator.Validate
	logger   *zap.Logger
}

func NewService(cfg config.Config, store dataStore, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		search:   deps.Search,
		assist:   deps.Assist,
		exporter: deps.Exporter,
		workbook: deps.Workbook,
		docs:     deps.Docs,
		validate: newValidator(),
		logger:   logger.Named("service"),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

type LoginInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password"`
	Role     string `json:"role" validate:"omitempty,oneof=viewer editor admin"`
}

// Login issues an access token. Viewer logins need only a name; editor and
// admin logins must match the configured bcrypt hash when one is set.
func (s *Service) Login(_ context.Context, in LoginInput) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return Session{}, err
	}
	role := rbac.Normalize(s.cfg.DefaultRole)
	if in.Role != "" {
		role = rbac.Role(in.Role)
	}

	var hash string
	switch role {
	case rbac.RoleAdmin:
		hash = s.cfg.AdminPasswordHash
	case rbac.RoleEditor:
		hash = s.cfg.EditorPasswordHash
	}
	if hash != "" {
		if err := auth.CheckPassword(hash, in.Password); err != nil {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid name or password", nil)
		}
	}

	token, claims, err := auth.IssueToken([]byte(s.cfg.JWTSecret), in.Name, string(role), s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("login", zap.String("user", in.Name), zap.String("role", string(role)))
	return Session{Token: token, UserName: in.Name, Role: role, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	session := Session{Token: token, UserName: claims.Name, Role: rbac.Normalize(claims.Role)}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) GetScoreCard(ctx context.Context, function string) (hierarchy.ScoreCard, error) {
	snapshot, err := s.store.Snapshot(ctx, strings.TrimSpace(function))
	if err != nil {
		return hierarchy.ScoreCard{}, err
	}
	return hierarchy.Assemble(snapshot), nil
}

// UpdateRequest accepts the positional form {updateType, fieldPath, newValue,
// quarter} and the typed form {kind, pillarId, categoryId, goalId, programId,
// quarter, value}.
type UpdateRequest struct {
	UpdateType string   `json:"updateType"`
	FieldPath  []string `json:"fieldPath"`
	NewValue   string   `json:"newValue"`
	Quarter    string   `json:"quarter"`

	Kind       string  `json:"kind"`
	PillarID   string  `json:"pillarId"`
	CategoryID string  `json:"categoryId"`
	GoalID     string  `json:"goalId"`
	ProgramID  string  `json:"programId"`
	Value      *string `json:"value"`
}

func (r UpdateRequest) command() (fieldpath.Command, error) {
	kind := r.UpdateType
	if kind == "" {
		kind = r.Kind
	}
	value := r.NewValue
	if r.Value != nil {
		value = *r.Value
	}
	if r.FieldPath != nil {
		return fieldpath.FromPath(kind, r.FieldPath, value, r.Quarter)
	}
	return fieldpath.Command{
		Kind: fieldpath.Kind(kind),
		Target: fieldpath.Target{
			PillarID:   r.PillarID,
			CategoryID: r.CategoryID,
			GoalID:     r.GoalID,
			ProgramID:  r.ProgramID,
		},
		Quarter: r.Quarter,
		Value:   value,
	}, nil
}

// PerformUpdate applies one field update and returns the full tree read
// after the commit.
func (s *Service) PerformUpdate(ctx context.Context, req UpdateRequest, actor string) (hierarchy.ScoreCard, error) {
	cmd, err := req.command()
	if err != nil {
		return hierarchy.ScoreCard{}, err
	}
	update, err := cmd.Plan(actor)
	if err != nil {
		return hierarchy.ScoreCard{}, err
	}
	if err := s.store.ApplyFieldUpdate(ctx, update); err != nil {
		return hierarchy.ScoreCard{}, err
	}
	s.logger.Info("field updated",
		zap.String("table", string(update.Table)),
		zap.String("column", string(update.Column)),
		zap.String("id", update.ID),
		zap.String("actor", actor),
	)
	if update.Column == "name" || update.Column == "text" {
		s.reindex(ctx, nodeTypeOf(update.Table), update.ID)
	}
	return s.GetScoreCard(ctx, "")
}

var tableNodeTypes = map[store.Table]schema.NodeType{
	store.TablePillars:    schema.NodePillar,
	store.TableCategories: schema.NodeCategory,
	store.TableGoals:      schema.NodeGoal,
	store.TablePrograms:   schema.NodeProgram,
}

func nodeTypeOf(table store.Table) schema.NodeType {
	return tableNodeTypes[table]
}

// reindex pushes the current label of a node to the search index.
func (s *Service) reindex(ctx context.Context, nodeType schema.NodeType, id string) {
	if s.search == nil || nodeType == "" {
		return
	}
	node, err := s.store.NodeByID(ctx, nodeType, id)
	if err != nil {
		s.logger.Warn("reindex lookup failed", zap.String("type", string(nodeType)), zap.String("id", id), zap.Error(err))
		return
	}
	s.search.IndexNode(node)
}

// reindexMoved refreshes every indexed node after a row changed its pillar or
// function; descendants carry both in their documents.
func (s *Service) reindexMoved(ctx context.Context, nodeType schema.NodeType, id string) {
	if s.search == nil {
		return
	}
	count, err := s.search.ReindexAll(ctx)
	if err != nil {
		s.logger.Warn("reindex after move failed", zap.String("type", string(nodeType)), zap.String("id", id), zap.Error(err))
		s.reindex(ctx, nodeType, id)
		return
	}
	s.logger.Debug("reindexed after move", zap.String("type", string(nodeType)), zap.String("id", id), zap.Int("documents", count))
}

func (s *Service) unindex(nodeType schema.NodeType, ids ...string) {
	if s.search == nil || nodeType == "" {
		return
	}
	for _, id := range ids {
		s.search.DeleteNode(nodeType, id)
	}
}

var docNames = map[string]bool{
	"scorecard-overview.md": true,
	"alignment-guide.md":    true,
	"ai-flows.md":           true,
}

// Doc returns one of the published markdown documents.
func (s *Service) Doc(ctx context.Context, name string) ([]byte, error) {
	if !docNames[name] || s.docs == nil {
		return nil, notFound("Document not found")
	}
	data, err := s.docs.Get(ctx, name)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, notFound("Document not found")
	}
	return data, err
}

func (s *Service) UpdateSpreadsheet(_ context.Context, update workbook.Update) (string, error) {
	if s.workbook == nil {
		return "", notFound("Workbook file mode is not enabled")
	}
	previous, err := s.workbook.Apply(update)
	if err != nil {
		return "", err
	}
	s.logger.Info("workbook cell updated", zap.String("sheet", update.Sheet), zap.String("id", update.ID), zap.String("column", update.Column))
	return previous, nil
}

func (s *Service) Chat(ctx context.Context, req assist.Request) (assist.Response, error) {
	if s.assist == nil {
		return assist.Response{}, assist.ErrUnavailable
	}
	if req.Flow == assist.FlowCompareGoals && len(req.Context) == 0 && len(req.GoalIDs) >= 2 {
		goals, err := s.goalsByID(ctx, req.GoalIDs)
		if err != nil {
			return assist.Response{}, err
		}
		if req.Context, err = json.Marshal(map[string]any{"goals": goals}); err != nil {
			return assist.Response{}, err
		}
	}
	return s.assist.Chat(ctx, req)
}

// goalsByID loads the compared goals, with their programs, from the live tree.
func (s *Service) goalsByID(ctx context.Context, ids []string) ([]hierarchy.Goal, error) {
	card, err := s.GetScoreCard(ctx, "")
	if err != nil {
		return nil, err
	}
	goals := make([]hierarchy.Goal, 0, len(ids))
	for _, id := range ids {
		goal, ok := card.FindGoal(strings.TrimSpace(id))
		if !ok {
			return nil, notFound("Goal %s not found", id)
		}
		goals = append(goals, goal)
	}
	return goals, nil
}

// ProgramHistory returns the progress audit trail of one program.
func (s *Service) ProgramHistory(ctx context.Context, id string) ([]HistoryRow, error) {
	if _, err := s.store.NodeByID(ctx, schema.NodeProgram, id); err != nil {
		if isNotFound(err) {
			return nil, notFound("Program %s not found", id)
		}
		return nil, err
	}
	history, err := s.store.ProgressHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return historyRows(history), nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	return s.exporter.Export(ctx, req)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
