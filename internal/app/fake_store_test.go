package app

import (
	"context"
	"database/sql"
	"errors"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

var errNotImplemented = errors.New("not implemented")

type fakeStore struct {
	pingFn             func(context.Context) error
	snapshotFn         func(context.Context, string) (store.Snapshot, error)
	applyFieldUpdateFn func(context.Context, store.FieldUpdate) error
	nodeByIDFn         func(context.Context, schema.NodeType, string) (store.Node, error)
	historyFn          func(context.Context, string) ([]store.ProgressUpdate, error)
	paginateFn         func(context.Context, store.PageQuery) (store.Page, error)
	createPillarFn     func(context.Context, store.PillarInput) (store.Pillar, error)
	updatePillarFn     func(context.Context, string, store.PillarPatch) (store.Pillar, error)
	updateGoalFn       func(context.Context, string, store.GoalPatch) (store.Goal, error)
	updateProgramFn    func(context.Context, string, store.ProgramPatch, string) (store.Program, error)
	deleteFn           func(context.Context, string, string) error
	bulkDeleteFn       func(context.Context, string, []string) (int64, error)
	listOptionsFn      func(context.Context, schema.NodeType, string) ([]store.Option, error)
	createAlignmentFn  func(context.Context, store.AlignmentInput) (store.Alignment, error)
	updateAlignmentFn  func(context.Context, string, store.AlignmentPatch) (store.Alignment, error)
	deleteAlignmentFn  func(context.Context, string) error
	listAlignmentsFn   func(context.Context) ([]store.Alignment, error)
	forNodeFn          func(context.Context, schema.NodeType, string) ([]store.Alignment, error)
	countAlignmentsFn  func(context.Context, schema.NodeType, string) (int, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) Snapshot(ctx context.Context, function string) (store.Snapshot, error) {
	if f.snapshotFn != nil {
		return f.snapshotFn(ctx, function)
	}
	return store.Snapshot{}, nil
}

func (f *fakeStore) ApplyFieldUpdate(ctx context.Context, update store.FieldUpdate) error {
	if f.applyFieldUpdateFn != nil {
		return f.applyFieldUpdateFn(ctx, update)
	}
	return errNotImplemented
}

func (f *fakeStore) NodeByID(ctx context.Context, nodeType schema.NodeType, id string) (store.Node, error) {
	if f.nodeByIDFn != nil {
		return f.nodeByIDFn(ctx, nodeType, id)
	}
	return store.Node{}, sql.ErrNoRows
}

func (f *fakeStore) ProgressHistory(ctx context.Context, programID string) ([]store.ProgressUpdate, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx, programID)
	}
	return nil, errNotImplemented
}

func (f *fakeStore) Paginate(ctx context.Context, q store.PageQuery) (store.Page, error) {
	if f.paginateFn != nil {
		return f.paginateFn(ctx, q)
	}
	return store.Page{}, errNotImplemented
}

func (f *fakeStore) CreatePillar(ctx context.Context, in store.PillarInput) (store.Pillar, error) {
	if f.createPillarFn != nil {
		return f.createPillarFn(ctx, in)
	}
	return store.Pillar{}, errNotImplemented
}

func (f *fakeStore) CreateCategory(context.Context, store.CategoryInput) (store.Category, error) {
	return store.Category{}, errNotImplemented
}

func (f *fakeStore) CreateGoal(context.Context, store.GoalInput) (store.Goal, error) {
	return store.Goal{}, errNotImplemented
}

func (f *fakeStore) CreateProgram(context.Context, store.ProgramInput) (store.Program, error) {
	return store.Program{}, errNotImplemented
}

func (f *fakeStore) UpdatePillar(ctx context.Context, id string, patch store.PillarPatch) (store.Pillar, error) {
	if f.updatePillarFn != nil {
		return f.updatePillarFn(ctx, id, patch)
	}
	return store.Pillar{}, errNotImplemented
}

func (f *fakeStore) UpdateCategory(context.Context, string, store.CategoryPatch) (store.Category, error) {
	return store.Category{}, errNotImplemented
}

func (f *fakeStore) UpdateGoal(ctx context.Context, id string, patch store.GoalPatch) (store.Goal, error) {
	if f.updateGoalFn != nil {
		return f.updateGoalFn(ctx, id, patch)
	}
	return store.Goal{}, errNotImplemented
}

func (f *fakeStore) UpdateProgram(ctx context.Context, id string, patch store.ProgramPatch, actor string) (store.Program, error) {
	if f.updateProgramFn != nil {
		return f.updateProgramFn(ctx, id, patch, actor)
	}
	return store.Program{}, errNotImplemented
}

func (f *fakeStore) Delete(ctx context.Context, table, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, table, id)
	}
	return errNotImplemented
}

func (f *fakeStore) BulkDelete(ctx context.Context, table string, ids []string) (int64, error) {
	if f.bulkDeleteFn != nil {
		return f.bulkDeleteFn(ctx, table, ids)
	}
	return 0, errNotImplemented
}

func (f *fakeStore) ListOptions(ctx context.Context, kind schema.NodeType, parentID string) ([]store.Option, error) {
	if f.listOptionsFn != nil {
		return f.listOptionsFn(ctx, kind, parentID)
	}
	return nil, errNotImplemented
}

func (f *fakeStore) CreateAlignment(ctx context.Context, in store.AlignmentInput) (store.Alignment, error) {
	if f.createAlignmentFn != nil {
		return f.createAlignmentFn(ctx, in)
	}
	return store.Alignment{}, errNotImplemented
}

func (f *fakeStore) GetAlignment(context.Context, string) (store.Alignment, error) {
	return store.Alignment{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateAlignment(ctx context.Context, id string, patch store.AlignmentPatch) (store.Alignment, error) {
	if f.updateAlignmentFn != nil {
		return f.updateAlignmentFn(ctx, id, patch)
	}
	return store.Alignment{}, errNotImplemented
}

func (f *fakeStore) DeleteAlignment(ctx context.Context, id string) error {
	if f.deleteAlignmentFn != nil {
		return f.deleteAlignmentFn(ctx, id)
	}
	return errNotImplemented
}

func (f *fakeStore) AlignmentsForNode(ctx context.Context, nodeType schema.NodeType, id string) ([]store.Alignment, error) {
	if f.forNodeFn != nil {
		return f.forNodeFn(ctx, nodeType, id)
	}
	return nil, nil
}

func (f *fakeStore) ListAlignments(ctx context.Context) ([]store.Alignment, error) {
	if f.listAlignmentsFn != nil {
		return f.listAlignmentsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) CountAlignments(ctx context.Context, nodeType schema.NodeType, id string) (int, error) {
	if f.countAlignmentsFn != nil {
		return f.countAlignmentsFn(ctx, nodeType, id)
	}
	return 0, nil
}
