package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorecard/api/internal/schema"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

// stringSliceConverter lets []string arguments reach sqlmock unchanged, as
// the pgx stdlib driver accepts them for ANY($1).
type stringSliceConverter struct{}

func (stringSliceConverter) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]string); ok {
		return ids, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newArrayMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(stringSliceConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPaginateSecondPageOfHundredTwenty(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM pillars`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))

	rows := sqlmock.NewRows([]string{"id", "name", "function_name", "created_at", "updated_at"})
	for i := 51; i <= 100; i++ {
		rows.AddRow(fmt.Sprintf("pillar-%03d", i), fmt.Sprintf("Pillar %d", i), "ORD", now, now)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, function_name, created_at, updated_at FROM pillars ORDER BY LENGTH(id) ASC, id ASC LIMIT $1 OFFSET $2`)).
		WithArgs(50, 50).
		WillReturnRows(rows)

	page, err := s.Paginate(context.Background(), PageQuery{Table: "pillars", Page: 2, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 50)
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 50, page.Limit)
	assert.Equal(t, "pillar-051", page.Rows[0]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaginateSearchBindsTerm(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM goals WHERE (text::text ILIKE $1 OR sponsors::text ILIKE $1)`)).
		WithArgs("%robot'; DROP%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM goals WHERE (text::text ILIKE $1 OR sponsors::text ILIKE $1) ORDER BY text DESC, id DESC LIMIT $2 OFFSET $3`)).
		WithArgs("%robot'; DROP%", 10, 0).
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableGoals].Columns).AddRow(
			"goal-001", "Robots", "", "", "", "", "", "", "", "", "", "", []byte(`["Ana","Bo"]`), "", "cat-001", "pillar-001", time.Now(), time.Now(),
		))

	page, err := s.Paginate(context.Background(), PageQuery{
		Table:         "goals",
		Page:          1,
		Limit:         10,
		SortColumn:    "text",
		SortDirection: "desc",
		Search:        "robot'; DROP",
		SearchColumns: []string{"text", "sponsors"},
	})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, []string{"Ana", "Bo"}, page.Rows[0]["sponsors"])
	assert.Equal(t, 1, page.TotalPages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderByUsesIDOnce(t *testing.T) {
	assert.Equal(t, "LENGTH(id) DESC, id DESC", tableRegistry[TablePrograms].orderBy("id", "DESC"))
	assert.Equal(t, "id ASC", tableRegistry[TableAlignments].orderBy("id", "ASC"))
	assert.Equal(t, "name ASC, id ASC", tableRegistry[TablePillars].orderBy("name", "ASC"))
}

func TestPaginateRejectsNamesOutsideRegistry(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	cases := []PageQuery{
		{Table: "users"},
		{Table: "pillars", SortColumn: "name; DROP TABLE pillars"},
		{Table: "pillars", SortDirection: "sideways"},
		{Table: "pillars", Search: "x", SearchColumns: []string{"password"}},
	}
	for _, q := range cases {
		_, err := s.Paginate(ctx, q)
		assert.ErrorIs(t, err, ErrInvalidQuery, "%+v", q)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePage(t *testing.T) {
	page, limit := NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageLimit, limit)

	_, limit = NormalizePage(3, 10_000)
	assert.Equal(t, MaxPageLimit, limit)

	assert.Equal(t, 0, TotalPages(0, 50))
	assert.Equal(t, 1, TotalPages(50, 50))
	assert.Equal(t, 3, TotalPages(101, 50))
}

func TestDeletePillarWithDependentsIsRefused(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM categories WHERE pillar_id = $1`)).
		WithArgs("pillar-001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "pillars", "pillar-001")
	var dependents *DependentsError
	require.True(t, errors.As(err, &dependents))
	assert.Equal(t, 2, dependents.Count)
	assert.Equal(t, TableCategories, dependents.Child)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePillarWithoutDependents(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM categories WHERE pillar_id = $1`)).
		WithArgs("pillar-001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DELETE FROM alignments`).
		WithArgs("pillar", "pillar-001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM pillars WHERE id = $1`)).
		WithArgs("pillar-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "pillars", "pillar-001"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingProgramIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM alignments`).
		WithArgs("program", "prog-404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM programs WHERE id = $1`)).
		WithArgs("prog-404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "programs", "prog-404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkDeleteRefusesWholeBatchWhenAnyRowHasDependents(t *testing.T) {
	s, mock := newArrayMockStore(t)
	ids := []string{"cat-001", "cat-002"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT category_id, COUNT(*) FROM goals WHERE category_id = ANY($1)`)).
		WithArgs(ids).
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "count"}).AddRow("cat-002", 3))
	mock.ExpectRollback()

	deleted, err := s.BulkDelete(context.Background(), "categories", ids)
	var dependents *DependentsError
	require.True(t, errors.As(err, &dependents))
	assert.Equal(t, "cat-002", dependents.ID)
	assert.Equal(t, TableGoals, dependents.Child)
	assert.Equal(t, 3, dependents.Count)
	assert.Zero(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkDeleteRemovesAlignmentsAndRows(t *testing.T) {
	s, mock := newArrayMockStore(t)
	ids := []string{"cat-001", "cat-002"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT category_id, COUNT(*) FROM goals WHERE category_id = ANY($1)`)).
		WithArgs(ids).
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "count"}))
	mock.ExpectExec(regexp.QuoteMeta(`WHERE (functional_type = $1 AND functional_id = ANY($2)) OR (ord_type = $1 AND ord_id = ANY($2))`)).
		WithArgs("category", ids).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM categories WHERE id = ANY($1)`)).
		WithArgs(ids).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := s.BulkDelete(context.Background(), "categories", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkDeleteAlignmentsByUUIDText(t *testing.T) {
	s, mock := newArrayMockStore(t)
	ids := []string{"0b0e6f5e-8a55-4e8f-9c57-0c1b4d0c9a11"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM alignments WHERE id::text = ANY($1)`)).
		WithArgs(ids).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := s.BulkDelete(context.Background(), "alignments", ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteHistoryIsReadOnly(t *testing.T) {
	s, _ := newMockStore(t)
	assert.ErrorIs(t, s.Delete(context.Background(), "progress_update_history", "1"), ErrReadOnly)
	_, err := s.BulkDelete(context.Background(), "progress_update_history", []string{"1"})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestResolveColumnIsClosed(t *testing.T) {
	column, ok := ResolveColumn(TablePrograms, FieldQuarterStatus, schema.Q2)
	require.True(t, ok)
	assert.Equal(t, Column("q2_status"), column)

	column, ok = ResolveColumn(TableGoals, FieldStatus, "")
	require.True(t, ok)
	assert.Equal(t, Column("status"), column)

	_, ok = ResolveColumn(TableGoals, FieldQuarterProgress, schema.Q1)
	assert.False(t, ok)
	_, ok = ResolveColumn(TablePrograms, FieldQuarterStatus, schema.Quarter("q5; --"))
	assert.False(t, ok)
	_, ok = ResolveColumn(TableCategories, FieldText, "")
	assert.False(t, ok)
}

func programLockRows(pillarID, categoryID, goalID, previous string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"pillar_id", "category_id", "goal_id", "previous"}).
		AddRow(pillarID, categoryID, goalID, previous)
}

func TestApplyFieldUpdateWritesOneColumn(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pillar_id, category_id, goal_id, q2_status::text FROM programs WHERE id = $1 FOR UPDATE`)).
		WithArgs("prog-001").
		WillReturnRows(programLockRows("pillar-001", "cat-001", "goal-001", "on-track"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE programs SET q2_status = $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs("delayed", "prog-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ApplyFieldUpdate(context.Background(), FieldUpdate{
		Table:    TablePrograms,
		Column:   "q2_status",
		ID:       "prog-001",
		Ancestry: Ancestry{PillarID: "pillar-001", CategoryID: "cat-001", GoalID: "goal-001"},
		Value:    "delayed",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFieldUpdateRecordsProgressHistory(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pillar_id, category_id, goal_id, q1_progress::text FROM programs WHERE id = $1 FOR UPDATE`)).
		WithArgs("prog-001").
		WillReturnRows(programLockRows("pillar-001", "cat-001", "goal-001", "kickoff"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE programs SET q1_progress = $1`)).
		WithArgs("pilot live", "prog-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO progress_update_history`).
		WithArgs("prog-001", "q1_progress", "kickoff", "pilot live", "ana").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.ApplyFieldUpdate(context.Background(), FieldUpdate{
		Table:         TablePrograms,
		Column:        "q1_progress",
		ID:            "prog-001",
		Ancestry:      Ancestry{PillarID: "pillar-001", CategoryID: "cat-001", GoalID: "goal-001"},
		Value:         "pilot live",
		RecordHistory: true,
		Actor:         "ana",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFieldUpdateSkipsHistoryForUnchangedValue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pillar_id, category_id, goal_id, q1_progress::text FROM programs WHERE id = $1 FOR UPDATE`)).
		WithArgs("prog-001").
		WillReturnRows(programLockRows("pillar-001", "cat-001", "goal-001", "pilot live"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE programs SET q1_progress = $1`)).
		WithArgs("pilot live", "prog-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ApplyFieldUpdate(context.Background(), FieldUpdate{
		Table:         TablePrograms,
		Column:        "q1_progress",
		ID:            "prog-001",
		Ancestry:      Ancestry{PillarID: "pillar-001", CategoryID: "cat-001", GoalID: "goal-001"},
		Value:         "pilot live",
		RecordHistory: true,
		Actor:         "ana",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFieldUpdateAncestryMismatchRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("prog-001").
		WillReturnRows(programLockRows("pillar-001", "cat-002", "goal-001", ""))
	mock.ExpectRollback()

	err := s.ApplyFieldUpdate(context.Background(), FieldUpdate{
		Table:    TablePrograms,
		Column:   "text",
		ID:       "prog-001",
		Ancestry: Ancestry{PillarID: "pillar-001", CategoryID: "cat-001", GoalID: "goal-001"},
		Value:    "renamed",
	})
	assert.ErrorIs(t, err, ErrAncestryMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFieldUpdateMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("cat-404").
		WillReturnRows(sqlmock.NewRows([]string{"pillar_id", "category_id", "goal_id", "previous"}))
	mock.ExpectRollback()

	err := s.ApplyFieldUpdate(context.Background(), FieldUpdate{
		Table:    TableCategories,
		Column:   "status",
		ID:       "cat-404",
		Ancestry: Ancestry{PillarID: "pillar-001"},
		Value:    "missed",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFieldUpdateRejectsUnknownColumn(t *testing.T) {
	s, mock := newMockStore(t)
	err := s.ApplyFieldUpdate(context.Background(), FieldUpdate{Table: TablePrograms, Column: "id", ID: "prog-001"})
	require.Error(t, err)
	err = s.ApplyFieldUpdate(context.Background(), FieldUpdate{Table: TableGoals, Column: "text", ID: "goal-001", RecordHistory: true})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotReadsAllTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	mock.MatchExpectationsInOrder(false)
	s := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectQuery(`FROM pillars ORDER BY name, id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "function_name", "created_at", "updated_at"}).
			AddRow("pillar-001", "Growth", "ORD", now, now))
	mock.ExpectQuery(`FROM categories ORDER BY`).
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableCategories].Columns).
			AddRow("cat-001", "Revenue", "on-track", "", "pillar-001", now, now))
	mock.ExpectQuery(`FROM goals ORDER BY`).
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableGoals].Columns).
			AddRow("goal-001", "Grow ARR", "", "", "a", "b", "c", "d", "", "on-track", "", "", []byte(`["Kim"]`), "", "cat-001", "pillar-001", now, now))
	mock.ExpectQuery(`FROM programs ORDER BY`).
		WillReturnRows(sqlmock.NewRows(tableRegistry[TablePrograms].Columns).
			AddRow("prog-001", "Launch EU", "", "", "", "", "", "delayed", "", "", "", "", "", "", []byte(`[]`), "", "goal-001", "cat-001", "pillar-001", now, now))

	snapshot, err := s.Snapshot(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, snapshot.Pillars, 1)
	require.Len(t, snapshot.Goals, 1)
	require.Len(t, snapshot.Programs, 1)
	assert.Equal(t, []string{"Kim"}, snapshot.Goals[0].Sponsors)
	assert.Equal(t, schema.Quarterly{Q1: "a", Q2: "b", Q3: "c", Q4: "d"}, snapshot.Goals[0].Objectives)
	assert.Equal(t, "delayed", snapshot.Programs[0].Statuses.Q2)
	assert.Equal(t, []string{}, snapshot.Programs[0].Sponsors)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotFiltersFunctionWithoutCase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	mock.MatchExpectationsInOrder(false)
	s := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pillars WHERE LOWER(function_name) = LOWER($1) ORDER BY name, id`)).
		WithArgs("ord").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "function_name", "created_at", "updated_at"}).
			AddRow("pillar-001", "Growth", "ORD", now, now))
	filter := regexp.QuoteMeta(`WHERE pillar_id IN (SELECT id FROM pillars WHERE LOWER(function_name) = LOWER($1))`)
	mock.ExpectQuery(`FROM categories ` + filter).WithArgs("ord").
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableCategories].Columns))
	mock.ExpectQuery(`FROM goals ` + filter).WithArgs("ord").
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableGoals].Columns))
	mock.ExpectQuery(`FROM programs ` + filter).WithArgs("ord").
		WillReturnRows(sqlmock.NewRows(tableRegistry[TablePrograms].Columns))

	snapshot, err := s.Snapshot(context.Background(), "ord")
	require.NoError(t, err)
	require.Len(t, snapshot.Pillars, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePillarStoresCanonicalOrdFunction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	for _, function := range []string{"ord", " Ord ", ""} {
		mock.ExpectQuery(`INSERT INTO pillars`).
			WithArgs("Growth", "ORD").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pillar-001"))
		mock.ExpectQuery(`FROM pillars WHERE id = \$1`).
			WithArgs("pillar-001").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "function_name", "created_at", "updated_at"}).
				AddRow("pillar-001", "Growth", "ORD", now, now))

		_, err := s.CreatePillar(context.Background(), PillarInput{Name: "Growth", Function: function})
		require.NoError(t, err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHierarchyCounts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`(SELECT COUNT(*) FROM pillars)`)).
		WillReturnRows(sqlmock.NewRows([]string{"pillars", "categories", "goals", "programs"}).AddRow(2, 5, 11, 30))

	counts, err := s.HierarchyCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReplaceStats{Pillars: 2, Categories: 5, Goals: 11, Programs: 30}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCategoryUnknownPillar(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO categories`).
		WithArgs("Ops", "", "", "pillar-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.CreateCategory(context.Background(), CategoryInput{Name: "Ops", PillarID: "pillar-404"})
	assert.ErrorIs(t, err, ErrParentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateGoalReparentCascadesToPrograms(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	text := "Grow ARR"
	categoryID := "cat-002"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, pillar_id FROM categories WHERE id = $1`)).
		WithArgs("cat-002").
		WillReturnRows(sqlmock.NewRows([]string{"id", "pillar_id"}).AddRow("cat-002", "pillar-009"))
	mock.ExpectExec(`UPDATE programs SET category_id = \$1, pillar_id = \$2`).
		WithArgs("cat-002", "pillar-009", "goal-001").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE goals SET text = $1, category_id = $2, pillar_id = $3, updated_at = NOW() WHERE id = $4`)).
		WithArgs("Grow ARR", "cat-002", "pillar-009", "goal-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM goals WHERE id = \$1`).
		WithArgs("goal-001").
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableGoals].Columns).
			AddRow("goal-001", text, "", "", "", "", "", "", "", "", "", "", []byte(`[]`), "", "cat-002", "pillar-009", now, now))

	goal, err := s.UpdateGoal(context.Background(), "goal-001", GoalPatch{Text: &text, CategoryID: &categoryID})
	require.NoError(t, err)
	assert.Equal(t, "pillar-009", goal.PillarID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCategoryMovesDescendantsToNewPillar(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	pillarID := "pillar-002"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM pillars WHERE id = $1`)).
		WithArgs("pillar-002").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pillar-002"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE goals SET pillar_id = $1, updated_at = NOW() WHERE category_id = $2`)).
		WithArgs("pillar-002", "cat-001").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE programs SET pillar_id = $1, updated_at = NOW() WHERE category_id = $2`)).
		WithArgs("pillar-002", "cat-001").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE categories SET pillar_id = $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs("pillar-002", "cat-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM categories WHERE id = \$1`).
		WithArgs("cat-001").
		WillReturnRows(sqlmock.NewRows(tableRegistry[TableCategories].Columns).
			AddRow("cat-001", "Revenue", "", "", "pillar-002", now, now))

	category, err := s.UpdateCategory(context.Background(), "cat-001", CategoryPatch{PillarID: &pillarID})
	require.NoError(t, err)
	assert.Equal(t, "pillar-002", category.PillarID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCategoryUnknownPillarRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	pillarID := "pillar-404"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM pillars WHERE id = $1`)).
		WithArgs("pillar-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.UpdateCategory(context.Background(), "cat-001", CategoryPatch{PillarID: &pillarID})
	assert.ErrorIs(t, err, ErrParentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func programLockProgress(q1, updates string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"q1_progress", "q2_progress", "q3_progress", "q4_progress", "progress_updates"}).
		AddRow(q1, "", "", "", updates)
}

func TestUpdateProgramRecordsProgressChanges(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	q1 := "pilot live"
	unchanged := "weekly sync"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM programs WHERE id = \$1 FOR UPDATE`).
		WithArgs("prog-001").
		WillReturnRows(programLockProgress("kickoff", "weekly sync"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE programs SET q1_progress = $1, progress_updates = $2, updated_at = NOW() WHERE id = $3`)).
		WithArgs("pilot live", "weekly sync", "prog-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO progress_update_history`).
		WithArgs("prog-001", "q1_progress", "kickoff", "pilot live", "ana").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM programs WHERE id = \$1`).
		WithArgs("prog-001").
		WillReturnRows(sqlmock.NewRows(tableRegistry[TablePrograms].Columns).
			AddRow("prog-001", "Launch EU", "", "", "", "", "", "", "", "", "pilot live", "", "", "", []byte(`[]`), "weekly sync", "goal-001", "cat-001", "pillar-001", now, now))

	program, err := s.UpdateProgram(context.Background(), "prog-001", ProgramPatch{
		Progress:        QuarterlyPatch{Q1: &q1},
		ProgressUpdates: &unchanged,
	}, "ana")
	require.NoError(t, err)
	assert.Equal(t, "pilot live", program.Progress.Q1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlignmentRejectsMalformedID(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.GetAlignment(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
