package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"scorecard/api/internal/schema"
)

var (
	// ErrInvalidQuery marks table, column or direction names outside the registry.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrParentNotFound is returned when a create or re-parent names a missing parent.
	ErrParentNotFound = errors.New("parent not found")
	// ErrReadOnly is returned for writes against audit tables.
	ErrReadOnly = errors.New("table is read-only")
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// TableSpec is the registry entry of one table exposed through the admin API.
type TableSpec struct {
	Name        Table
	Columns     []string
	Searchable  []string
	DefaultSort string
	ReadOnly    bool
	// casts holds select expressions for columns that need a text rendering.
	casts map[string]string
	// child is the dependent table, childColumn its reference to this one.
	child       Table
	childColumn string
	nodeType    schema.NodeType
}

var tableRegistry = map[Table]TableSpec{
	TablePillars: {
		Name:        TablePillars,
		Columns:     []string{"id", "name", "function_name", "created_at", "updated_at"},
		Searchable:  []string{"id", "name", "function_name"},
		DefaultSort: "id",
		child:       TableCategories,
		childColumn: "pillar_id",
		nodeType:    schema.NodePillar,
	},
	TableCategories: {
		Name:        TableCategories,
		Columns:     []string{"id", "name", "status", "comments", "pillar_id", "created_at", "updated_at"},
		Searchable:  []string{"id", "name", "status", "comments"},
		DefaultSort: "id",
		child:       TableGoals,
		childColumn: "category_id",
		nodeType:    schema.NodeCategory,
	},
	TableGoals: {
		Name: TableGoals,
		Columns: []string{
			"id", "text", "status", "comments",
			"q1_objective", "q2_objective", "q3_objective", "q4_objective",
			"q1_status", "q2_status", "q3_status", "q4_status",
			"sponsors", "progress_updates", "category_id", "pillar_id", "created_at", "updated_at",
		},
		Searchable:  []string{"id", "text", "status", "comments", "sponsors"},
		DefaultSort: "id",
		casts:       map[string]string{"sponsors": "sponsors::text"},
		child:       TablePrograms,
		childColumn: "goal_id",
		nodeType:    schema.NodeGoal,
	},
	TablePrograms: {
		Name: TablePrograms,
		Columns: []string{
			"id", "text",
			"q1_objective", "q2_objective", "q3_objective", "q4_objective",
			"q1_status", "q2_status", "q3_status", "q4_status",
			"q1_progress", "q2_progress", "q3_progress", "q4_progress",
			"sponsors", "progress_updates", "goal_id", "category_id", "pillar_id", "created_at", "updated_at",
		},
		Searchable:  []string{"id", "text", "sponsors", "progress_updates"},
		DefaultSort: "id",
		casts:       map[string]string{"sponsors": "sponsors::text"},
		nodeType:    schema.NodeProgram,
	},
	TableAlignments: {
		Name: TableAlignments,
		Columns: []string{
			"id", "functional_type", "functional_id", "ord_type", "ord_id",
			"strength", "rationale", "created_by", "created_at", "updated_at",
		},
		Searchable:  []string{"functional_id", "ord_id", "strength", "rationale", "created_by"},
		DefaultSort: "created_at",
		casts:       map[string]string{"id": "id::text"},
	},
	TableProgressHistory: {
		Name:        TableProgressHistory,
		Columns:     []string{"id", "program_id", "field", "previous_value", "new_value", "changed_by", "changed_at"},
		Searchable:  []string{"program_id", "field", "previous_value", "new_value", "changed_by"},
		DefaultSort: "changed_at",
		ReadOnly:    true,
	},
}

// LookupTable returns the registry entry for name.
func LookupTable(name string) (TableSpec, bool) {
	spec, ok := tableRegistry[Table(name)]
	return spec, ok
}

func (t TableSpec) hasColumn(column string) bool {
	for _, candidate := range t.Columns {
		if candidate == column {
			return true
		}
	}
	return false
}

func (t TableSpec) selectList() string {
	parts := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		if expr, ok := t.casts[column]; ok {
			parts = append(parts, expr+" AS "+column)
			continue
		}
		parts = append(parts, column)
	}
	return strings.Join(parts, ", ")
}

// orderBy sorts on column with id as the tiebreaker. Hierarchy ids share a
// prefix and a zero-padded counter, so shorter ids sort first.
func (t TableSpec) orderBy(column, direction string) string {
	if column != "id" {
		return column + " " + direction + ", id " + direction
	}
	if t.nodeType == "" {
		return "id " + direction
	}
	return "LENGTH(id) " + direction + ", id " + direction
}

type PageQuery struct {
	Table         string
	Page          int
	Limit         int
	SortColumn    string
	SortDirection string
	Search        string
	SearchColumns []string
}

type Page struct {
	Rows       []map[string]any
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// NormalizePage applies the default page and limit and caps the limit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// TotalPages is ceil(total/limit); zero rows give zero pages.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Paginate reads one page of a registered table. Table and column names are
// checked against the registry; the search term is always a bound parameter.
func (s *PostgresStore) Paginate(ctx context.Context, q PageQuery) (Page, error) {
	spec, ok := LookupTable(q.Table)
	if !ok {
		return Page{}, fmt.Errorf("unknown table %q: %w", q.Table, ErrInvalidQuery)
	}

	sortColumn := q.SortColumn
	if sortColumn == "" {
		sortColumn = spec.DefaultSort
	}
	if !spec.hasColumn(sortColumn) {
		return Page{}, fmt.Errorf("unknown sort column %q: %w", sortColumn, ErrInvalidQuery)
	}
	direction := "ASC"
	switch strings.ToLower(strings.TrimSpace(q.SortDirection)) {
	case "", "asc":
	case "desc":
		direction = "DESC"
	default:
		return Page{}, fmt.Errorf("unknown sort direction %q: %w", q.SortDirection, ErrInvalidQuery)
	}

	var (
		where string
		args  []any
	)
	if term := strings.TrimSpace(q.Search); term != "" {
		columns := q.SearchColumns
		if len(columns) == 0 {
			columns = spec.Searchable
		}
		clauses := make([]string, 0, len(columns))
		for _, column := range columns {
			if !spec.hasColumn(column) {
				return Page{}, fmt.Errorf("unknown search column %q: %w", column, ErrInvalidQuery)
			}
			clauses = append(clauses, column+"::text ILIKE $1")
		}
		where = " WHERE (" + strings.Join(clauses, " OR ") + ")"
		args = append(args, "%"+term+"%")
	}

	page, limit := NormalizePage(q.Page, q.Limit)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(spec.Name)+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count %s: %w", spec.Name, err)
	}

	limitArg := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		spec.selectList(), spec.Name, where, spec.orderBy(sortColumn, direction), limitArg, limitArg+1)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return Page{}, fmt.Errorf("query %s page: %w", spec.Name, err)
	}
	defer rows.Close()

	data := make([]map[string]any, 0, limit)
	for rows.Next() {
		values := make([]any, len(spec.Columns))
		targets := make([]any, len(spec.Columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return Page{}, fmt.Errorf("scan %s row: %w", spec.Name, err)
		}
		row := make(map[string]any, len(spec.Columns))
		for i, column := range spec.Columns {
			row[column] = normalizeCell(column, values[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate %s rows: %w", spec.Name, err)
	}

	return Page{
		Rows:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: TotalPages(total, limit),
	}, nil
}

func normalizeCell(column string, value any) any {
	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}
	if column == "sponsors" {
		if text, ok := value.(string); ok {
			sponsors, err := decodeSponsors([]byte(text))
			if err == nil {
				return sponsors
			}
		}
	}
	return value
}

type PillarInput struct {
	Name     string
	Function string
}

type CategoryInput struct {
	Name     string
	Status   string
	Comments string
	PillarID string
}

type GoalInput struct {
	Text            string
	Status          string
	Comments        string
	Objectives      schema.Quarterly
	Statuses        schema.Quarterly
	Sponsors        []string
	ProgressUpdates string
	CategoryID      string
}

type ProgramInput struct {
	Text            string
	Objectives      schema.Quarterly
	Statuses        schema.Quarterly
	Progress        schema.Quarterly
	Sponsors        []string
	ProgressUpdates string
	GoalID          string
}

// canonicalFunction stores every spelling of the organization-wide function
// as ORD and defaults an empty one to it.
func canonicalFunction(function string) string {
	function = strings.TrimSpace(function)
	if function == "" || schema.IsOrd(function) {
		return schema.OrdFunction
	}
	return function
}

func (s *PostgresStore) CreatePillar(ctx context.Context, in PillarInput) (Pillar, error) {
	function := canonicalFunction(in.Function)
	var id string
	err := s.db.QueryRowContext(ctx, `INSERT INTO pillars (name, function_name) VALUES ($1, $2) RETURNING id`, in.Name, function).Scan(&id)
	if err != nil {
		return Pillar{}, fmt.Errorf("insert pillar: %w", err)
	}
	return s.GetPillar(ctx, id)
}

// CreateCategory inserts a category under an existing pillar.
func (s *PostgresStore) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, status, comments, pillar_id)
		SELECT $1, $2, $3, p.id FROM pillars p WHERE p.id = $4
		RETURNING id
	`, in.Name, in.Status, in.Comments, in.PillarID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, fmt.Errorf("pillar %s: %w", in.PillarID, ErrParentNotFound)
	}
	if err != nil {
		return Category{}, fmt.Errorf("insert category: %w", err)
	}
	return s.GetCategory(ctx, id)
}

// CreateGoal inserts a goal; its pillar id is copied from the category row.
func (s *PostgresStore) CreateGoal(ctx context.Context, in GoalInput) (Goal, error) {
	sponsors, err := encodeSponsors(in.Sponsors)
	if err != nil {
		return Goal{}, fmt.Errorf("encode sponsors: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO goals (
			text, status, comments,
			q1_objective, q2_objective, q3_objective, q4_objective,
			q1_status, q2_status, q3_status, q4_status,
			sponsors, progress_updates, category_id, pillar_id
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, c.id, c.pillar_id
		FROM categories c WHERE c.id = $14
		RETURNING id
	`,
		in.Text, in.Status, in.Comments,
		in.Objectives.Q1, in.Objectives.Q2, in.Objectives.Q3, in.Objectives.Q4,
		in.Statuses.Q1, in.Statuses.Q2, in.Statuses.Q3, in.Statuses.Q4,
		sponsors, in.ProgressUpdates, in.CategoryID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Goal{}, fmt.Errorf("category %s: %w", in.CategoryID, ErrParentNotFound)
	}
	if err != nil {
		return Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	return s.GetGoal(ctx, id)
}

// CreateProgram inserts a program; category and pillar ids come from the goal row.
func (s *PostgresStore) CreateProgram(ctx context.Context, in ProgramInput) (Program, error) {
	sponsors, err := encodeSponsors(in.Sponsors)
	if err != nil {
		return Program{}, fmt.Errorf("encode sponsors: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO programs (
			text,
			q1_objective, q2_objective, q3_objective, q4_objective,
			q1_status, q2_status, q3_status, q4_status,
			q1_progress, q2_progress, q3_progress, q4_progress,
			sponsors, progress_updates, goal_id, category_id, pillar_id
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15, g.id, g.category_id, g.pillar_id
		FROM goals g WHERE g.id = $16
		RETURNING id
	`,
		in.Text,
		in.Objectives.Q1, in.Objectives.Q2, in.Objectives.Q3, in.Objectives.Q4,
		in.Statuses.Q1, in.Statuses.Q2, in.Statuses.Q3, in.Statuses.Q4,
		in.Progress.Q1, in.Progress.Q2, in.Progress.Q3, in.Progress.Q4,
		sponsors, in.ProgressUpdates, in.GoalID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Program{}, fmt.Errorf("goal %s: %w", in.GoalID, ErrParentNotFound)
	}
	if err != nil {
		return Program{}, fmt.Errorf("insert program: %w", err)
	}
	return s.GetProgram(ctx, id)
}

// QuarterlyPatch carries optional per-quarter values.
type QuarterlyPatch struct {
	Q1 *string
	Q2 *string
	Q3 *string
	Q4 *string
}

func (p QuarterlyPatch) get(quarter schema.Quarter) *string {
	switch quarter {
	case schema.Q1:
		return p.Q1
	case schema.Q2:
		return p.Q2
	case schema.Q3:
		return p.Q3
	case schema.Q4:
		return p.Q4
	}
	return nil
}

type PillarPatch struct {
	Name     *string
	Function *string
}

type CategoryPatch struct {
	Name     *string
	Status   *string
	Comments *string
	PillarID *string
}

type GoalPatch struct {
	Text            *string
	Status          *string
	Comments        *string
	Objectives      QuarterlyPatch
	Statuses        QuarterlyPatch
	Sponsors        *[]string
	ProgressUpdates *string
	CategoryID      *string
}

type ProgramPatch struct {
	Text            *string
	Objectives      QuarterlyPatch
	Statuses        QuarterlyPatch
	Progress        QuarterlyPatch
	Sponsors        *[]string
	ProgressUpdates *string
	GoalID          *string
}

// setBuilder accumulates "column = $n" clauses. Columns are literals from
// this file, values are always bound.
type setBuilder struct {
	clauses []string
	args    []any
}

func (b *setBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, column+" = $"+strconv.Itoa(len(b.args)))
}

func (b *setBuilder) setString(column string, value *string) {
	if value != nil {
		b.set(column, *value)
	}
}

func (b *setBuilder) setQuarterly(suffix string, patch QuarterlyPatch) {
	for _, quarter := range schema.Quarters {
		b.setString(string(quarter)+"_"+suffix, patch.get(quarter))
	}
}

func (b *setBuilder) empty() bool {
	return len(b.clauses) == 0
}

// exec runs the UPDATE for id and reports sql.ErrNoRows when nothing matched.
func (b *setBuilder) exec(ctx context.Context, tx *sql.Tx, table Table, id string) error {
	b.args = append(b.args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at = NOW() WHERE id = $%d`, table, strings.Join(b.clauses, ", "), len(b.args))
	result, err := tx.ExecContext(ctx, query, b.args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update %s %s: %w", table, id, sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) UpdatePillar(ctx context.Context, id string, patch PillarPatch) (Pillar, error) {
	var b setBuilder
	b.setString("name", patch.Name)
	if patch.Function != nil {
		b.set("function_name", canonicalFunction(*patch.Function))
	}
	if !b.empty() {
		if err := s.inTx(ctx, func(tx *sql.Tx) error { return b.exec(ctx, tx, TablePillars, id) }); err != nil {
			return Pillar{}, err
		}
	}
	return s.GetPillar(ctx, id)
}

// UpdateCategory applies the supplied fields. Moving a category to another
// pillar rewrites the pillar id of every goal and program beneath it.
func (s *PostgresStore) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (Category, error) {
	var b setBuilder
	b.setString("name", patch.Name)
	b.setString("status", patch.Status)
	b.setString("comments", patch.Comments)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if patch.PillarID != nil {
			var pillarID string
			err := tx.QueryRowContext(ctx, `SELECT id FROM pillars WHERE id = $1`, *patch.PillarID).Scan(&pillarID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("pillar %s: %w", *patch.PillarID, ErrParentNotFound)
			}
			if err != nil {
				return fmt.Errorf("lookup pillar: %w", err)
			}
			b.set("pillar_id", pillarID)
			if _, err := tx.ExecContext(ctx, `UPDATE goals SET pillar_id = $1, updated_at = NOW() WHERE category_id = $2`, pillarID, id); err != nil {
				return fmt.Errorf("cascade goal pillar: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE programs SET pillar_id = $1, updated_at = NOW() WHERE category_id = $2`, pillarID, id); err != nil {
				return fmt.Errorf("cascade program pillar: %w", err)
			}
		}
		if b.empty() {
			return nil
		}
		return b.exec(ctx, tx, TableCategories, id)
	})
	if err != nil {
		return Category{}, err
	}
	return s.GetCategory(ctx, id)
}

// UpdateGoal applies the supplied fields. A new category id also sets the
// pillar id from that category and cascades both to the goal's programs.
func (s *PostgresStore) UpdateGoal(ctx context.Context, id string, patch GoalPatch) (Goal, error) {
	var b setBuilder
	b.setString("text", patch.Text)
	b.setString("status", patch.Status)
	b.setString("comments", patch.Comments)
	b.setQuarterly("objective", patch.Objectives)
	b.setQuarterly("status", patch.Statuses)
	b.setString("progress_updates", patch.ProgressUpdates)
	if patch.Sponsors != nil {
		sponsors, err := encodeSponsors(*patch.Sponsors)
		if err != nil {
			return Goal{}, fmt.Errorf("encode sponsors: %w", err)
		}
		b.set("sponsors", sponsors)
		b.clauses[len(b.clauses)-1] += "::jsonb"
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if patch.CategoryID != nil {
			var categoryID, pillarID string
			err := tx.QueryRowContext(ctx, `SELECT id, pillar_id FROM categories WHERE id = $1`, *patch.CategoryID).Scan(&categoryID, &pillarID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("category %s: %w", *patch.CategoryID, ErrParentNotFound)
			}
			if err != nil {
				return fmt.Errorf("lookup category: %w", err)
			}
			b.set("category_id", categoryID)
			b.set("pillar_id", pillarID)
			if _, err := tx.ExecContext(ctx, `UPDATE programs SET category_id = $1, pillar_id = $2, updated_at = NOW() WHERE goal_id = $3`, categoryID, pillarID, id); err != nil {
				return fmt.Errorf("cascade program ancestry: %w", err)
			}
		}
		if b.empty() {
			return nil
		}
		return b.exec(ctx, tx, TableGoals, id)
	})
	if err != nil {
		return Goal{}, err
	}
	return s.GetGoal(ctx, id)
}

// UpdateProgram applies the supplied fields. Changes to progress columns are
// appended to the progress history with their previous value.
func (s *PostgresStore) UpdateProgram(ctx context.Context, id string, patch ProgramPatch, actor string) (Program, error) {
	var b setBuilder
	b.setString("text", patch.Text)
	b.setQuarterly("objective", patch.Objectives)
	b.setQuarterly("status", patch.Statuses)
	b.setQuarterly("progress", patch.Progress)
	b.setString("progress_updates", patch.ProgressUpdates)
	if patch.Sponsors != nil {
		sponsors, err := encodeSponsors(*patch.Sponsors)
		if err != nil {
			return Program{}, fmt.Errorf("encode sponsors: %w", err)
		}
		b.set("sponsors", sponsors)
		b.clauses[len(b.clauses)-1] += "::jsonb"
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var previous struct {
			progress schema.Quarterly
			updates  string
		}
		err := tx.QueryRowContext(ctx, `
			SELECT q1_progress, q2_progress, q3_progress, q4_progress, progress_updates
			FROM programs WHERE id = $1 FOR UPDATE
		`, id).Scan(&previous.progress.Q1, &previous.progress.Q2, &previous.progress.Q3, &previous.progress.Q4, &previous.updates)
		if err != nil {
			return fmt.Errorf("lock program %s: %w", id, err)
		}

		if patch.GoalID != nil {
			var goalID, categoryID, pillarID string
			err := tx.QueryRowContext(ctx, `SELECT id, category_id, pillar_id FROM goals WHERE id = $1`, *patch.GoalID).Scan(&goalID, &categoryID, &pillarID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("goal %s: %w", *patch.GoalID, ErrParentNotFound)
			}
			if err != nil {
				return fmt.Errorf("lookup goal: %w", err)
			}
			b.set("goal_id", goalID)
			b.set("category_id", categoryID)
			b.set("pillar_id", pillarID)
		}
		if b.empty() {
			return nil
		}
		if err := b.exec(ctx, tx, TablePrograms, id); err != nil {
			return err
		}

		for _, quarter := range schema.Quarters {
			next := patch.Progress.get(quarter)
			if next == nil || *next == previous.progress.Get(quarter) {
				continue
			}
			if err := insertHistory(ctx, tx, id, string(quarter)+"_progress", previous.progress.Get(quarter), *next, actor); err != nil {
				return err
			}
		}
		if patch.ProgressUpdates != nil && *patch.ProgressUpdates != previous.updates {
			if err := insertHistory(ctx, tx, id, "progress_updates", previous.updates, *patch.ProgressUpdates, actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Program{}, err
	}
	return s.GetProgram(ctx, id)
}

func insertHistory(ctx context.Context, tx *sql.Tx, programID, field, previous, next, actor string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO progress_update_history (program_id, field, previous_value, new_value, changed_by)
		VALUES ($1, $2, $3, $4, $5)
	`, programID, field, previous, next, actor)
	if err != nil {
		return fmt.Errorf("insert progress history: %w", err)
	}
	return nil
}

// Delete removes one hierarchy row. Rows with children are refused with a
// *DependentsError; alignments touching the row are removed with it.
func (s *PostgresStore) Delete(ctx context.Context, table string, id string) error {
	spec, ok := LookupTable(table)
	if !ok {
		return fmt.Errorf("unknown table %q: %w", table, ErrInvalidQuery)
	}
	if spec.ReadOnly {
		return fmt.Errorf("delete from %s: %w", spec.Name, ErrReadOnly)
	}
	if spec.Name == TableAlignments {
		return s.DeleteAlignment(ctx, id)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if spec.child != "" {
			var count int
			query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, spec.child, spec.childColumn)
			if err := tx.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
				return fmt.Errorf("count %s dependents: %w", spec.Name, err)
			}
			if count > 0 {
				return &DependentsError{Table: spec.Name, ID: id, Child: spec.child, Count: count}
			}
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM alignments
			WHERE (functional_type = $1 AND functional_id = $2) OR (ord_type = $1 AND ord_id = $2)
		`, string(spec.nodeType), id); err != nil {
			return fmt.Errorf("delete alignments of %s: %w", id, err)
		}

		result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, spec.Name), id)
		if err != nil {
			return fmt.Errorf("delete %s: %w", spec.Name, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("delete %s %s: %w", spec.Name, id, sql.ErrNoRows)
		}
		return nil
	})
}

// BulkDelete removes every id in one transaction. Any dependent row anywhere in
// the batch aborts the whole delete.
func (s *PostgresStore) BulkDelete(ctx context.Context, table string, ids []string) (int64, error) {
	spec, ok := LookupTable(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q: %w", table, ErrInvalidQuery)
	}
	if spec.ReadOnly {
		return 0, fmt.Errorf("delete from %s: %w", spec.Name, ErrReadOnly)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if spec.child != "" {
			var (
				parentID string
				count    int
			)
			query := fmt.Sprintf(`SELECT %[2]s, COUNT(*) FROM %[1]s WHERE %[2]s = ANY($1) GROUP BY %[2]s ORDER BY %[2]s LIMIT 1`, spec.child, spec.childColumn)
			err := tx.QueryRowContext(ctx, query, ids).Scan(&parentID, &count)
			if err == nil {
				return &DependentsError{Table: spec.Name, ID: parentID, Child: spec.child, Count: count}
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("count %s dependents: %w", spec.Name, err)
			}
		}

		idColumn := "id"
		if spec.Name == TableAlignments {
			idColumn = "id::text"
		} else if _, err := tx.ExecContext(ctx, `
			DELETE FROM alignments
			WHERE (functional_type = $1 AND functional_id = ANY($2)) OR (ord_type = $1 AND ord_id = ANY($2))
		`, string(spec.nodeType), ids); err != nil {
			return fmt.Errorf("delete alignments: %w", err)
		}

		result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, spec.Name, idColumn), ids)
		if err != nil {
			return fmt.Errorf("bulk delete %s: %w", spec.Name, err)
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ListOptions returns id/label pairs for a cascading dropdown. parentID
// restricts children to one parent when non-empty.
func (s *PostgresStore) ListOptions(ctx context.Context, kind schema.NodeType, parentID string) ([]Option, error) {
	var query string
	switch kind {
	case schema.NodePillar:
		query = `SELECT id, name FROM pillars`
	case schema.NodeCategory:
		query = `SELECT id, name FROM categories`
		if parentID != "" {
			query += ` WHERE pillar_id = $1`
		}
	case schema.NodeGoal:
		query = `SELECT id, text FROM goals`
		if parentID != "" {
			query += ` WHERE category_id = $1`
		}
	case schema.NodeProgram:
		query = `SELECT id, text FROM programs`
		if parentID != "" {
			query += ` WHERE goal_id = $1`
		}
	default:
		return nil, fmt.Errorf("unknown option kind %q: %w", kind, ErrInvalidQuery)
	}
	query += ` ORDER BY 2, 1`

	var args []any
	if parentID != "" && kind != schema.NodePillar {
		args = append(args, parentID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s options: %w", kind, err)
	}
	defer rows.Close()

	options := make([]Option, 0)
	for rows.Next() {
		var option Option
		if err := rows.Scan(&option.ID, &option.Label); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options = append(options, option)
	}
	return options, rows.Err()
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
