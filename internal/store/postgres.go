package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"scorecard/api/internal/schema"
)

var (
	// ErrAncestryMismatch is returned when a row exists but its parent chain
	// differs from the one the caller addressed it by.
	ErrAncestryMismatch = errors.New("ancestry mismatch")
	// ErrDuplicate wraps unique constraint violations.
	ErrDuplicate = errors.New("duplicate row")
)

// DependentsError reports a delete that was refused because child rows exist.
type DependentsError struct {
	Table Table
	ID    string
	Child Table
	Count int
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("%s %s has %d dependent %s", e.Table, e.ID, e.Count, e.Child)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const (
	pillarColumns   = `id, name, function_name, created_at, updated_at`
	categoryColumns = `id, name, status, comments, pillar_id, created_at, updated_at`
	goalColumns     = `id, text, status, comments,
		q1_objective, q2_objective, q3_objective, q4_objective,
		q1_status, q2_status, q3_status, q4_status,
		sponsors, progress_updates, category_id, pillar_id, created_at, updated_at`
	programColumns = `id, text,
		q1_objective, q2_objective, q3_objective, q4_objective,
		q1_status, q2_status, q3_status, q4_status,
		q1_progress, q2_progress, q3_progress, q4_progress,
		sponsors, progress_updates, goal_id, category_id, pillar_id, created_at, updated_at`
)

// Snapshot reads the four hierarchy tables concurrently. A non-empty function
// restricts pillars to that function, compared without case, and children to
// those pillars.
func (s *PostgresStore) Snapshot(ctx context.Context, function string) (Snapshot, error) {
	var (
		snapshot Snapshot
		filter   string
		args     []any
	)
	if function != "" {
		filter = ` WHERE pillar_id IN (SELECT id FROM pillars WHERE LOWER(function_name) = LOWER($1))`
		args = []any{function}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		query := `SELECT ` + pillarColumns + ` FROM pillars`
		if function != "" {
			query += ` WHERE LOWER(function_name) = LOWER($1)`
		}
		rows, err := s.listPillars(groupCtx, query+` ORDER BY name, id`, args...)
		snapshot.Pillars = rows
		return err
	})
	group.Go(func() error {
		rows, err := s.listCategories(groupCtx, `SELECT `+categoryColumns+` FROM categories`+filter+` ORDER BY pillar_id, name, id`, args...)
		snapshot.Categories = rows
		return err
	})
	group.Go(func() error {
		rows, err := s.listGoals(groupCtx, `SELECT `+goalColumns+` FROM goals`+filter+` ORDER BY category_id, text, id`, args...)
		snapshot.Goals = rows
		return err
	})
	group.Go(func() error {
		rows, err := s.listPrograms(groupCtx, `SELECT `+programColumns+` FROM programs`+filter+` ORDER BY goal_id, text, id`, args...)
		snapshot.Programs = rows
		return err
	})
	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

func (s *PostgresStore) GetPillar(ctx context.Context, id string) (Pillar, error) {
	rows, err := s.listPillars(ctx, `SELECT `+pillarColumns+` FROM pillars WHERE id = $1`, id)
	if err != nil {
		return Pillar{}, err
	}
	if len(rows) == 0 {
		return Pillar{}, fmt.Errorf("get pillar %s: %w", id, sql.ErrNoRows)
	}
	return rows[0], nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (Category, error) {
	rows, err := s.listCategories(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if err != nil {
		return Category{}, err
	}
	if len(rows) == 0 {
		return Category{}, fmt.Errorf("get category %s: %w", id, sql.ErrNoRows)
	}
	return rows[0], nil
}

func (s *PostgresStore) GetGoal(ctx context.Context, id string) (Goal, error) {
	rows, err := s.listGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id)
	if err != nil {
		return Goal{}, err
	}
	if len(rows) == 0 {
		return Goal{}, fmt.Errorf("get goal %s: %w", id, sql.ErrNoRows)
	}
	return rows[0], nil
}

func (s *PostgresStore) GetProgram(ctx context.Context, id string) (Program, error) {
	rows, err := s.listPrograms(ctx, `SELECT `+programColumns+` FROM programs WHERE id = $1`, id)
	if err != nil {
		return Program{}, err
	}
	if len(rows) == 0 {
		return Program{}, fmt.Errorf("get program %s: %w", id, sql.ErrNoRows)
	}
	return rows[0], nil
}

// ProgressHistory returns the audit trail of one program, newest first.
func (s *PostgresStore) ProgressHistory(ctx context.Context, programID string) ([]ProgressUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_id, field, previous_value, new_value, changed_by, changed_at
		FROM progress_update_history
		WHERE program_id = $1
		ORDER BY changed_at DESC, id DESC
	`, programID)
	if err != nil {
		return nil, fmt.Errorf("query progress history: %w", err)
	}
	defer rows.Close()

	history := make([]ProgressUpdate, 0)
	for rows.Next() {
		var entry ProgressUpdate
		if err := rows.Scan(&entry.ID, &entry.ProgramID, &entry.Field, &entry.PreviousValue, &entry.NewValue, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan progress history: %w", err)
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

func (s *PostgresStore) listPillars(ctx context.Context, query string, args ...any) ([]Pillar, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pillars: %w", err)
	}
	defer rows.Close()

	pillars := make([]Pillar, 0)
	for rows.Next() {
		var p Pillar
		if err := rows.Scan(&p.ID, &p.Name, &p.Function, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pillar: %w", err)
		}
		pillars = append(pillars, p)
	}
	return pillars, rows.Err()
}

func (s *PostgresStore) listCategories(ctx context.Context, query string, args ...any) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Comments, &c.PillarID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) listGoals(ctx context.Context, query string, args ...any) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	goals := make([]Goal, 0)
	for rows.Next() {
		var (
			g        Goal
			sponsors []byte
		)
		if err := rows.Scan(
			&g.ID, &g.Text, &g.Status, &g.Comments,
			&g.Objectives.Q1, &g.Objectives.Q2, &g.Objectives.Q3, &g.Objectives.Q4,
			&g.Statuses.Q1, &g.Statuses.Q2, &g.Statuses.Q3, &g.Statuses.Q4,
			&sponsors, &g.ProgressUpdates, &g.CategoryID, &g.PillarID, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		if g.Sponsors, err = decodeSponsors(sponsors); err != nil {
			return nil, fmt.Errorf("decode goal %s sponsors: %w", g.ID, err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *PostgresStore) listPrograms(ctx context.Context, query string, args ...any) ([]Program, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	programs := make([]Program, 0)
	for rows.Next() {
		var (
			p        Program
			sponsors []byte
		)
		if err := rows.Scan(
			&p.ID, &p.Text,
			&p.Objectives.Q1, &p.Objectives.Q2, &p.Objectives.Q3, &p.Objectives.Q4,
			&p.Statuses.Q1, &p.Statuses.Q2, &p.Statuses.Q3, &p.Statuses.Q4,
			&p.Progress.Q1, &p.Progress.Q2, &p.Progress.Q3, &p.Progress.Q4,
			&sponsors, &p.ProgressUpdates, &p.GoalID, &p.CategoryID, &p.PillarID, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		if p.Sponsors, err = decodeSponsors(sponsors); err != nil {
			return nil, fmt.Errorf("decode program %s sponsors: %w", p.ID, err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

func decodeSponsors(raw []byte) ([]string, error) {
	sponsors := make([]string, 0)
	if len(raw) == 0 {
		return sponsors, nil
	}
	if err := json.Unmarshal(raw, &sponsors); err != nil {
		return nil, err
	}
	return sponsors, nil
}

func encodeSponsors(sponsors []string) (string, error) {
	if sponsors == nil {
		sponsors = []string{}
	}
	raw, err := json.Marshal(sponsors)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// NodeByID resolves a hierarchy row of the given type together with the
// function of the pillar it hangs under.
func (s *PostgresStore) NodeByID(ctx context.Context, nodeType schema.NodeType, id string) (Node, error) {
	var query string
	switch nodeType {
	case schema.NodePillar:
		query = `SELECT p.id, p.name, p.function_name, p.id FROM pillars p WHERE p.id = $1`
	case schema.NodeCategory:
		query = `SELECT c.id, c.name, p.function_name, p.id FROM categories c JOIN pillars p ON p.id = c.pillar_id WHERE c.id = $1`
	case schema.NodeGoal:
		query = `SELECT g.id, g.text, p.function_name, p.id FROM goals g JOIN pillars p ON p.id = g.pillar_id WHERE g.id = $1`
	case schema.NodeProgram:
		query = `SELECT r.id, r.text, p.function_name, p.id FROM programs r JOIN pillars p ON p.id = r.pillar_id WHERE r.id = $1`
	default:
		return Node{}, fmt.Errorf("unknown node type %q", nodeType)
	}

	node := Node{Type: nodeType}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&node.ID, &node.Label, &node.Function, &node.PillarID)
	if err != nil {
		return Node{}, fmt.Errorf("lookup %s %s: %w", nodeType, id, err)
	}
	return node, nil
}

// ListNodes returns every hierarchy row as a flat node list, used to build
// the search index.
func (s *PostgresStore) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'pillar', p.id, p.name, p.function_name, p.id FROM pillars p
		UNION ALL
		SELECT 'category', c.id, c.name, p.function_name, p.id FROM categories c JOIN pillars p ON p.id = c.pillar_id
		UNION ALL
		SELECT 'goal', g.id, g.text, p.function_name, p.id FROM goals g JOIN pillars p ON p.id = g.pillar_id
		UNION ALL
		SELECT 'program', r.id, r.text, p.function_name, p.id FROM programs r JOIN pillars p ON p.id = r.pillar_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// SearchNodes matches node labels with ILIKE across the four tables.
func (s *PostgresStore) SearchNodes(ctx context.Context, term string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_type, id, label, function_name, pillar_id FROM (
			SELECT 'pillar' AS node_type, p.id, p.name AS label, p.function_name, p.id AS pillar_id FROM pillars p
			UNION ALL
			SELECT 'category', c.id, c.name, p.function_name, p.id FROM categories c JOIN pillars p ON p.id = c.pillar_id
			UNION ALL
			SELECT 'goal', g.id, g.text, p.function_name, p.id FROM goals g JOIN pillars p ON p.id = g.pillar_id
			UNION ALL
			SELECT 'program', r.id, r.text, p.function_name, p.id FROM programs r JOIN pillars p ON p.id = r.pillar_id
		) nodes
		WHERE label ILIKE $1 OR id ILIKE $1
		ORDER BY label, id
		LIMIT $2
	`, "%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func scanNodes(rows *sql.Rows) ([]Node, error) {
	nodes := make([]Node, 0)
	for rows.Next() {
		var (
			node     Node
			nodeType string
		)
		if err := rows.Scan(&nodeType, &node.ID, &node.Label, &node.Function, &node.PillarID); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		node.Type = schema.NodeType(nodeType)
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
