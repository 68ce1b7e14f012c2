package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scorecard/api/internal/schema"
)

type Table string

const (
	TablePillars         Table = "pillars"
	TableCategories      Table = "categories"
	TableGoals           Table = "goals"
	TablePrograms        Table = "programs"
	TableAlignments      Table = "alignments"
	TableProgressHistory Table = "progress_update_history"
)

// FieldKind names an editable attribute independently of the column that
// stores it.
type FieldKind string

const (
	FieldName            FieldKind = "name"
	FieldText            FieldKind = "text"
	FieldStatus          FieldKind = "status"
	FieldComments        FieldKind = "comments"
	FieldProgressUpdates FieldKind = "progress_updates"
	FieldObjective       FieldKind = "objective"
	FieldQuarterStatus   FieldKind = "quarter_status"
	FieldQuarterProgress FieldKind = "quarter_progress"
)

// Column is a column identifier taken from the closed map below. Values of
// this type are the only strings ever placed into SQL text by field updates.
type Column string

type columnKey struct {
	table   Table
	kind    FieldKind
	quarter schema.Quarter
}

var editableColumns = func() map[columnKey]Column {
	columns := map[columnKey]Column{
		{TablePillars, FieldName, ""}:             "name",
		{TableCategories, FieldName, ""}:          "name",
		{TableCategories, FieldStatus, ""}:        "status",
		{TableCategories, FieldComments, ""}:      "comments",
		{TableGoals, FieldText, ""}:               "text",
		{TableGoals, FieldStatus, ""}:             "status",
		{TableGoals, FieldComments, ""}:           "comments",
		{TableGoals, FieldProgressUpdates, ""}:    "progress_updates",
		{TablePrograms, FieldText, ""}:            "text",
		{TablePrograms, FieldProgressUpdates, ""}: "progress_updates",
	}
	for _, quarter := range schema.Quarters {
		q := string(quarter)
		columns[columnKey{TableGoals, FieldObjective, quarter}] = Column(q + "_objective")
		columns[columnKey{TableGoals, FieldQuarterStatus, quarter}] = Column(q + "_status")
		columns[columnKey{TablePrograms, FieldObjective, quarter}] = Column(q + "_objective")
		columns[columnKey{TablePrograms, FieldQuarterStatus, quarter}] = Column(q + "_status")
		columns[columnKey{TablePrograms, FieldQuarterProgress, quarter}] = Column(q + "_progress")
	}
	return columns
}()

// ResolveColumn maps a table, field kind and quarter to its column. Kinds that
// are not quarterly must be resolved with an empty quarter.
func ResolveColumn(table Table, kind FieldKind, quarter schema.Quarter) (Column, bool) {
	column, ok := editableColumns[columnKey{table, kind, quarter}]
	return column, ok
}

func isEditableColumn(table Table, column Column) bool {
	for key, candidate := range editableColumns {
		if key.table == table && candidate == column {
			return true
		}
	}
	return false
}

// FieldUpdate is a single-row, single-column write addressed by id and the
// expected parent chain.
type FieldUpdate struct {
	Table         Table
	Column        Column
	ID            string
	Ancestry      Ancestry
	Value         string
	RecordHistory bool
	Actor         string
}

var ancestrySelect = map[Table]string{
	TablePillars:    `'', '', ''`,
	TableCategories: `pillar_id, '', ''`,
	TableGoals:      `pillar_id, category_id, ''`,
	TablePrograms:   `pillar_id, category_id, goal_id`,
}

// ApplyFieldUpdate locks the target row, verifies its ancestry, writes the
// column and, when requested, appends a progress history row. Everything runs
// in one transaction. A missing row yields sql.ErrNoRows and a parent chain
// mismatch yields ErrAncestryMismatch.
func (s *PostgresStore) ApplyFieldUpdate(ctx context.Context, update FieldUpdate) error {
	selectAncestry, ok := ancestrySelect[update.Table]
	if !ok || !isEditableColumn(update.Table, update.Column) {
		return fmt.Errorf("column %s.%s is not editable", update.Table, update.Column)
	}
	if update.RecordHistory && update.Table != TablePrograms {
		return fmt.Errorf("progress history is only kept for programs")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin field update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		current  Ancestry
		previous string
	)
	lockQuery := fmt.Sprintf(`SELECT %s, %s::text FROM %s WHERE id = $1 FOR UPDATE`, selectAncestry, update.Column, update.Table)
	err = tx.QueryRowContext(ctx, lockQuery, update.ID).Scan(&current.PillarID, &current.CategoryID, &current.GoalID, &previous)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock %s %s: %w", update.Table, update.ID, sql.ErrNoRows)
	}
	if err != nil {
		return fmt.Errorf("lock %s %s: %w", update.Table, update.ID, err)
	}
	if current != update.Ancestry {
		return fmt.Errorf("%s %s is under %+v: %w", update.Table, update.ID, current, ErrAncestryMismatch)
	}

	updateQuery := fmt.Sprintf(`UPDATE %s SET %s = $1, updated_at = NOW() WHERE id = $2`, update.Table, update.Column)
	result, err := tx.ExecContext(ctx, updateQuery, update.Value, update.ID)
	if err != nil {
		return fmt.Errorf("update %s.%s: %w", update.Table, update.Column, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update %s %s: %w", update.Table, update.ID, sql.ErrNoRows)
	}

	if update.RecordHistory && previous != update.Value {
		if err := insertHistory(ctx, tx, update.ID, string(update.Column), previous, update.Value, update.Actor); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit field update: %w", err)
	}
	return nil
}
