// Package fieldpath turns scorecard edit requests into single-column store
// updates. A request names its target by kind and ancestry, either as a typed
// command or as the positional id path used by the scorecard grid.
package fieldpath

import (
	"fmt"
	"strings"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

type Kind string

const (
	KindProgramStatus    Kind = "program"
	KindProgramText      Kind = "program-text"
	KindProgramObjective Kind = "program-objective"
	KindProgramProgress  Kind = "program-progress"
	KindCategoryStatus   Kind = "category"
	KindCategoryName     Kind = "category-name"
	KindCategoryComments Kind = "category-comments"
	KindGoalStatus       Kind = "goal"
	KindGoalText         Kind = "goal-text"
	KindGoalObjective    Kind = "goal-objective"
	KindGoalProgress     Kind = "goal-progress"
	KindGoalComments     Kind = "goal-comments"
)

const (
	CodeInvalidType    = "INVALID_TYPE"
	CodeInvalidQuarter = "INVALID_QUARTER"
	CodeInvalidStatus  = "INVALID_STATUS"
	CodeInvalidPath    = "INVALID_PATH"
)

// Error is a rejected command. Code is one of the Code constants.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalid(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

type quarterUse int

const (
	quarterIgnored quarterUse = iota
	quarterRequired
	// quarterOptional selects the quarterly field when a quarter is given and
	// the overall field otherwise.
	quarterOptional
)

type kindSpec struct {
	level        schema.NodeType
	field        store.FieldKind
	quarterField store.FieldKind
	quarter      quarterUse
	status       bool
	history      bool
}

var kinds = map[Kind]kindSpec{
	KindProgramStatus:    {level: schema.NodeProgram, quarterField: store.FieldQuarterStatus, quarter: quarterRequired, status: true},
	KindProgramText:      {level: schema.NodeProgram, field: store.FieldText},
	KindProgramObjective: {level: schema.NodeProgram, quarterField: store.FieldObjective, quarter: quarterRequired},
	KindProgramProgress:  {level: schema.NodeProgram, field: store.FieldProgressUpdates, quarterField: store.FieldQuarterProgress, quarter: quarterOptional, history: true},
	KindCategoryStatus:   {level: schema.NodeCategory, field: store.FieldStatus, status: true},
	KindCategoryName:     {level: schema.NodeCategory, field: store.FieldName},
	KindCategoryComments: {level: schema.NodeCategory, field: store.FieldComments},
	KindGoalStatus:       {level: schema.NodeGoal, field: store.FieldStatus, quarterField: store.FieldQuarterStatus, quarter: quarterOptional, status: true},
	KindGoalText:         {level: schema.NodeGoal, field: store.FieldText},
	KindGoalObjective:    {level: schema.NodeGoal, quarterField: store.FieldObjective, quarter: quarterRequired},
	KindGoalProgress:     {level: schema.NodeGoal, field: store.FieldProgressUpdates},
	KindGoalComments:     {level: schema.NodeGoal, field: store.FieldComments},
}

// Kinds lists every accepted kind.
func Kinds() []Kind {
	return []Kind{
		KindProgramStatus, KindProgramText, KindProgramObjective, KindProgramProgress,
		KindCategoryStatus, KindCategoryName, KindCategoryComments,
		KindGoalStatus, KindGoalText, KindGoalObjective, KindGoalProgress, KindGoalComments,
	}
}

// Target addresses one row by its full ancestry. Ids below the target level
// stay empty.
type Target struct {
	PillarID   string `json:"pillarId"`
	CategoryID string `json:"categoryId"`
	GoalID     string `json:"goalId"`
	ProgramID  string `json:"programId"`
}

type Command struct {
	Kind    Kind
	Target  Target
	Quarter string
	Value   string
}

var pathLength = map[schema.NodeType]int{
	schema.NodeCategory: 2,
	schema.NodeGoal:     3,
	schema.NodeProgram:  4,
}

// FromPath builds a command from a positional path
// [pillarId, categoryId, goalId, programId] truncated to the target level.
func FromPath(kind string, path []string, value, quarter string) (Command, error) {
	spec, ok := kinds[Kind(kind)]
	if !ok {
		return Command{}, invalid(CodeInvalidType, "unknown update type %q", kind)
	}
	if want := pathLength[spec.level]; len(path) != want {
		return Command{}, invalid(CodeInvalidPath, "%s updates need a path of %d ids, got %d", kind, want, len(path))
	}

	target := Target{PillarID: path[0], CategoryID: path[1]}
	if len(path) > 2 {
		target.GoalID = path[2]
	}
	if len(path) > 3 {
		target.ProgramID = path[3]
	}
	return Command{Kind: Kind(kind), Target: target, Quarter: quarter, Value: value}, nil
}

// Plan validates the command and resolves it to a store update. Status values
// are normalized to their canonical spelling.
func (c Command) Plan(actor string) (store.FieldUpdate, error) {
	spec, ok := kinds[c.Kind]
	if !ok {
		return store.FieldUpdate{}, invalid(CodeInvalidType, "unknown update type %q", c.Kind)
	}

	table, id, ancestry, err := c.Target.resolve(spec.level)
	if err != nil {
		return store.FieldUpdate{}, err
	}

	field := spec.field
	var quarter schema.Quarter
	switch spec.quarter {
	case quarterRequired:
		parsed, ok := schema.ParseQuarter(c.Quarter)
		if !ok {
			return store.FieldUpdate{}, invalid(CodeInvalidQuarter, "%s updates need a quarter q1..q4, got %q", c.Kind, c.Quarter)
		}
		quarter, field = parsed, spec.quarterField
	case quarterOptional:
		if strings.TrimSpace(c.Quarter) != "" {
			parsed, ok := schema.ParseQuarter(c.Quarter)
			if !ok {
				return store.FieldUpdate{}, invalid(CodeInvalidQuarter, "invalid quarter %q", c.Quarter)
			}
			quarter, field = parsed, spec.quarterField
		}
	}

	value := c.Value
	if spec.status {
		status, ok := schema.ParseStatus(value)
		if !ok {
			return store.FieldUpdate{}, invalid(CodeInvalidStatus, "invalid status %q", c.Value)
		}
		value = string(status)
	}

	column, ok := store.ResolveColumn(table, field, quarter)
	if !ok {
		return store.FieldUpdate{}, invalid(CodeInvalidType, "%s has no column for %s", c.Kind, field)
	}

	return store.FieldUpdate{
		Table:         table,
		Column:        column,
		ID:            id,
		Ancestry:      ancestry,
		Value:         value,
		RecordHistory: spec.history && table == store.TablePrograms,
		Actor:         actor,
	}, nil
}

func (t Target) resolve(level schema.NodeType) (store.Table, string, store.Ancestry, error) {
	if err := requireID("pillarId", t.PillarID, level); err != nil {
		return "", "", store.Ancestry{}, err
	}
	if err := requireID("categoryId", t.CategoryID, level); err != nil {
		return "", "", store.Ancestry{}, err
	}
	if level == schema.NodeCategory {
		return store.TableCategories, t.CategoryID, store.Ancestry{PillarID: t.PillarID}, nil
	}

	if err := requireID("goalId", t.GoalID, level); err != nil {
		return "", "", store.Ancestry{}, err
	}
	if level == schema.NodeGoal {
		return store.TableGoals, t.GoalID, store.Ancestry{PillarID: t.PillarID, CategoryID: t.CategoryID}, nil
	}

	if err := requireID("programId", t.ProgramID, level); err != nil {
		return "", "", store.Ancestry{}, err
	}
	return store.TablePrograms, t.ProgramID, store.Ancestry{PillarID: t.PillarID, CategoryID: t.CategoryID, GoalID: t.GoalID}, nil
}

func requireID(name, value string, level schema.NodeType) error {
	if strings.TrimSpace(value) == "" {
		return invalid(CodeInvalidPath, "%s is required for %s updates", name, level)
	}
	return nil
}
