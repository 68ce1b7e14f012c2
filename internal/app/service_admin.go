package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

type PageResult struct {
	Data       []map[string]any `json:"data"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

func (s *Service) ListTable(ctx context.Context, q store.PageQuery) (PageResult, error) {
	if _, ok := store.LookupTable(q.Table); !ok {
		return PageResult{}, unknownTable(q.Table)
	}
	page, err := s.store.Paginate(ctx, q)
	if err != nil {
		return PageResult{}, err
	}
	return PageResult{
		Data:       page.Rows,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	}, nil
}

func unknownTable(table string) error {
	return domainError(http.StatusBadRequest, "INVALID_TABLE", fmt.Sprintf("Unknown table %q", table), nil)
}

// CreateRow decodes the table's create input strictly and inserts one row.
func (s *Service) CreateRow(ctx context.Context, table string, raw []byte, actor string) (any, error) {
	switch store.Table(table) {
	case store.TablePillars:
		var in PillarCreate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		pillar, err := s.store.CreatePillar(ctx, store.PillarInput{Name: strings.TrimSpace(in.Name), Function: strings.TrimSpace(in.Function)})
		if err != nil {
			return nil, err
		}
		s.reindex(ctx, schema.NodePillar, pillar.ID)
		return pillarRow(pillar), nil

	case store.TableCategories:
		var in CategoryCreate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		category, err := s.store.CreateCategory(ctx, store.CategoryInput{
			Name:     strings.TrimSpace(in.Name),
			Status:   canonicalStatus(in.Status),
			Comments: in.Comments,
			PillarID: in.PillarID,
		})
		if err != nil {
			return nil, err
		}
		s.reindex(ctx, schema.NodeCategory, category.ID)
		return categoryRow(category), nil

	case store.TableGoals:
		var in GoalCreate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		goal, err := s.store.CreateGoal(ctx, store.GoalInput{
			Text:            strings.TrimSpace(in.Text),
			Status:          canonicalStatus(in.Status),
			Comments:        in.Comments,
			Objectives:      in.QuarterlyObjectives.quarterly(),
			Statuses:        in.QuarterlyStatuses.quarterly(),
			Sponsors:        in.Sponsors,
			ProgressUpdates: in.ProgressUpdates,
			CategoryID:      in.CategoryID,
		})
		if err != nil {
			return nil, err
		}
		s.reindex(ctx, schema.NodeGoal, goal.ID)
		return goalRow(goal), nil

	case store.TablePrograms:
		var in ProgramCreate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		program, err := s.store.CreateProgram(ctx, store.ProgramInput{
			Text:            strings.TrimSpace(in.Text),
			Objectives:      in.QuarterlyObjectives.quarterly(),
			Statuses:        in.QuarterlyStatuses.quarterly(),
			Progress:        in.QuarterlyProgress.quarterly(),
			Sponsors:        in.Sponsors,
			ProgressUpdates: in.ProgressUpdates,
			GoalID:          in.GoalID,
		})
		if err != nil {
			return nil, err
		}
		s.reindex(ctx, schema.NodeProgram, program.ID)
		return programRow(program), nil

	case store.TableAlignments:
		var in AlignmentCreate
		if err := decodeStrict(raw, &in); err != nil {
			return nil, err
		}
		alignment, err := s.CreateAlignment(ctx, in, actor)
		if err != nil {
			return nil, err
		}
		return alignment, nil

	case store.TableProgressHistory:
		return nil, store.ErrReadOnly
	}
	return nil, unknownTable(table)
}

// UpdateRow applies the supplied fields of the table's update input.
func (s *Service) UpdateRow(ctx context.Context, table, id string, raw []byte, actor string) (any, error) {
	switch store.Table(table) {
	case store.TablePillars:
		var in PillarUpdate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		pillar, err := s.store.UpdatePillar(ctx, id, store.PillarPatch{Name: in.Name, Function: in.Function})
		if err != nil {
			return nil, err
		}
		if in.Function != nil {
			s.reindexMoved(ctx, schema.NodePillar, id)
		} else {
			s.reindex(ctx, schema.NodePillar, id)
		}
		return pillarRow(pillar), nil

	case store.TableCategories:
		var in CategoryUpdate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		category, err := s.store.UpdateCategory(ctx, id, store.CategoryPatch{
			Name:     in.Name,
			Status:   canonicalStatusPtr(in.Status),
			Comments: in.Comments,
			PillarID: in.PillarID,
		})
		if err != nil {
			return nil, err
		}
		if in.PillarID != nil {
			s.reindexMoved(ctx, schema.NodeCategory, id)
		} else {
			s.reindex(ctx, schema.NodeCategory, id)
		}
		return categoryRow(category), nil

	case store.TableGoals:
		var in GoalUpdate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		goal, err := s.store.UpdateGoal(ctx, id, store.GoalPatch{
			Text:            in.Text,
			Status:          canonicalStatusPtr(in.Status),
			Comments:        in.Comments,
			Objectives:      in.QuarterlyObjectives.patch(),
			Statuses:        in.QuarterlyStatuses.patch(),
			Sponsors:        in.Sponsors,
			ProgressUpdates: in.ProgressUpdates,
			CategoryID:      in.CategoryID,
		})
		if err != nil {
			return nil, err
		}
		if in.CategoryID != nil {
			s.reindexMoved(ctx, schema.NodeGoal, id)
		} else {
			s.reindex(ctx, schema.NodeGoal, id)
		}
		return goalRow(goal), nil

	case store.TablePrograms:
		var in ProgramUpdate
		if err := s.decodeAndCheck(raw, &in); err != nil {
			return nil, err
		}
		program, err := s.store.UpdateProgram(ctx, id, store.ProgramPatch{
			Text:            in.Text,
			Objectives:      in.QuarterlyObjectives.patch(),
			Statuses:        in.QuarterlyStatuses.patch(),
			Progress:        in.QuarterlyProgress.patch(),
			Sponsors:        in.Sponsors,
			ProgressUpdates: in.ProgressUpdates,
			GoalID:          in.GoalID,
		}, actor)
		if err != nil {
			return nil, err
		}
		s.reindex(ctx, schema.NodeProgram, id)
		return programRow(program), nil

	case store.TableAlignments:
		var in AlignmentUpdate
		if err := decodeStrict(raw, &in); err != nil {
			return nil, err
		}
		return s.UpdateAlignment(ctx, id, in)

	case store.TableProgressHistory:
		return nil, store.ErrReadOnly
	}
	return nil, unknownTable(table)
}

func (s *Service) DeleteRow(ctx context.Context, table, id string) error {
	if _, ok := store.LookupTable(table); !ok {
		return unknownTable(table)
	}
	if err := s.store.Delete(ctx, table, id); err != nil {
		return err
	}
	s.unindex(nodeTypeOf(store.Table(table)), id)
	s.logger.Info("row deleted", zap.String("table", table), zap.String("id", id))
	return nil
}

type BulkDeleteInput struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

// BulkDeleteRows deletes every id or none of them.
func (s *Service) BulkDeleteRows(ctx context.Context, table string, in BulkDeleteInput) (int64, error) {
	if _, ok := store.LookupTable(table); !ok {
		return 0, unknownTable(table)
	}
	if err := s.check(in); err != nil {
		return 0, err
	}
	deleted, err := s.store.BulkDelete(ctx, table, in.IDs)
	if err != nil {
		return 0, err
	}
	s.unindex(nodeTypeOf(store.Table(table)), in.IDs...)
	s.logger.Info("rows deleted", zap.String("table", table), zap.Int64("count", deleted))
	return deleted, nil
}

type OptionView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var optionKinds = map[string]schema.NodeType{
	"pillars":    schema.NodePillar,
	"categories": schema.NodeCategory,
	"goals":      schema.NodeGoal,
	"programs":   schema.NodeProgram,
}

// Options lists dropdown entries for kind, filtered by the parent id when
// one is given.
func (s *Service) Options(ctx context.Context, kind, parentID string) ([]OptionView, error) {
	nodeType, ok := optionKinds[kind]
	if !ok {
		return nil, domainError(http.StatusBadRequest, "INVALID_KIND", fmt.Sprintf("Unknown option kind %q", kind), nil)
	}
	options, err := s.store.ListOptions(ctx, nodeType, strings.TrimSpace(parentID))
	if err != nil {
		return nil, err
	}
	views := make([]OptionView, 0, len(options))
	for _, option := range options {
		views = append(views, OptionView{ID: option.ID, Label: option.Label})
	}
	return views, nil
}

func (s *Service) decodeAndCheck(raw []byte, target any) error {
	if err := decodeStrict(raw, target); err != nil {
		return err
	}
	return s.check(target)
}
