package app

import (
	"time"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

type QuarterlyText struct {
	Q1 string `json:"q1" validate:"max=2000"`
	Q2 string `json:"q2" validate:"max=2000"`
	Q3 string `json:"q3" validate:"max=2000"`
	Q4 string `json:"q4" validate:"max=2000"`
}

func (q QuarterlyText) quarterly() schema.Quarterly {
	return schema.Quarterly{Q1: q.Q1, Q2: q.Q2, Q3: q.Q3, Q4: q.Q4}
}

type QuarterlyStatus struct {
	Q1 string `json:"q1" validate:"scorecard_status"`
	Q2 string `json:"q2" validate:"scorecard_status"`
	Q3 string `json:"q3" validate:"scorecard_status"`
	Q4 string `json:"q4" validate:"scorecard_status"`
}

func (q QuarterlyStatus) quarterly() schema.Quarterly {
	return schema.Quarterly{Q1: canonicalStatus(q.Q1), Q2: canonicalStatus(q.Q2), Q3: canonicalStatus(q.Q3), Q4: canonicalStatus(q.Q4)}
}

type QuarterlyTextPatch struct {
	Q1 *string `json:"q1" validate:"omitempty,max=2000"`
	Q2 *string `json:"q2" validate:"omitempty,max=2000"`
	Q3 *string `json:"q3" validate:"omitempty,max=2000"`
	Q4 *string `json:"q4" validate:"omitempty,max=2000"`
}

func (q *QuarterlyTextPatch) patch() store.QuarterlyPatch {
	if q == nil {
		return store.QuarterlyPatch{}
	}
	return store.QuarterlyPatch{Q1: q.Q1, Q2: q.Q2, Q3: q.Q3, Q4: q.Q4}
}

type QuarterlyStatusPatch struct {
	Q1 *string `json:"q1" validate:"omitempty,scorecard_status"`
	Q2 *string `json:"q2" validate:"omitempty,scorecard_status"`
	Q3 *string `json:"q3" validate:"omitempty,scorecard_status"`
	Q4 *string `json:"q4" validate:"omitempty,scorecard_status"`
}

func (q *QuarterlyStatusPatch) patch() store.QuarterlyPatch {
	if q == nil {
		return store.QuarterlyPatch{}
	}
	return store.QuarterlyPatch{
		Q1: canonicalStatusPtr(q.Q1),
		Q2: canonicalStatusPtr(q.Q2),
		Q3: canonicalStatusPtr(q.Q3),
		Q4: canonicalStatusPtr(q.Q4),
	}
}

type PillarCreate struct {
	Name     string `json:"name" validate:"required,max=200"`
	Function string `json:"function" validate:"max=100"`
}

type PillarUpdate struct {
	Name     *string `json:"name" validate:"omitnil,min=1,max=200"`
	Function *string `json:"function" validate:"omitnil,min=1,max=100"`
}

type CategoryCreate struct {
	Name     string `json:"name" validate:"required,max=200"`
	Status   string `json:"status" validate:"scorecard_status"`
	Comments string `json:"comments" validate:"max=4000"`
	PillarID string `json:"pillarId" validate:"required"`
}

type CategoryUpdate struct {
	Name     *string `json:"name" validate:"omitnil,min=1,max=200"`
	Status   *string `json:"status" validate:"omitempty,scorecard_status"`
	Comments *string `json:"comments" validate:"omitempty,max=4000"`
	PillarID *string `json:"pillarId" validate:"omitnil,min=1"`
}

type GoalCreate struct {
	Text                string          `json:"text" validate:"required,max=2000"`
	Status              string          `json:"status" validate:"scorecard_status"`
	Comments            string          `json:"comments" validate:"max=4000"`
	QuarterlyObjectives QuarterlyText   `json:"quarterlyObjectives"`
	QuarterlyStatuses   QuarterlyStatus `json:"quarterlyStatuses"`
	Sponsors            []string        `json:"sponsors" validate:"dive,required,max=200"`
	ProgressUpdates     string          `json:"progressUpdates"`
	CategoryID          string          `json:"categoryId" validate:"required"`

	// Derived from the parent row; accepted and ignored.
	PillarID string `json:"pillarId"`
}

type GoalUpdate struct {
	Text                *string               `json:"text" validate:"omitnil,min=1,max=2000"`
	Status              *string               `json:"status" validate:"omitempty,scorecard_status"`
	Comments            *string               `json:"comments" validate:"omitempty,max=4000"`
	QuarterlyObjectives *QuarterlyTextPatch   `json:"quarterlyObjectives"`
	QuarterlyStatuses   *QuarterlyStatusPatch `json:"quarterlyStatuses"`
	Sponsors            *[]string             `json:"sponsors" validate:"omitempty,dive,required,max=200"`
	ProgressUpdates     *string               `json:"progressUpdates"`
	CategoryID          *string               `json:"categoryId" validate:"omitnil,min=1"`
	PillarID            *string               `json:"pillarId"`
}

type ProgramCreate struct {
	Text                string          `json:"text" validate:"required,max=2000"`
	QuarterlyObjectives QuarterlyText   `json:"quarterlyObjectives"`
	QuarterlyStatuses   QuarterlyStatus `json:"quarterlyStatuses"`
	QuarterlyProgress   QuarterlyText   `json:"quarterlyProgress"`
	Sponsors            []string        `json:"sponsors" validate:"dive,required,max=200"`
	ProgressUpdates     string          `json:"progressUpdates"`
	GoalID              string          `json:"goalId" validate:"required"`

	// Derived from the goal; accepted and ignored.
	CategoryID string `json:"categoryId"`
	PillarID   string `json:"pillarId"`
}

type ProgramUpdate struct {
	Text                *string               `json:"text" validate:"omitnil,min=1,max=2000"`
	QuarterlyObjectives *QuarterlyTextPatch   `json:"quarterlyObjectives"`
	QuarterlyStatuses   *QuarterlyStatusPatch `json:"quarterlyStatuses"`
	QuarterlyProgress   *QuarterlyTextPatch   `json:"quarterlyProgress"`
	Sponsors            *[]string             `json:"sponsors" validate:"omitempty,dive,required,max=200"`
	ProgressUpdates     *string               `json:"progressUpdates"`
	GoalID              *string               `json:"goalId" validate:"omitnil,min=1"`
	CategoryID          *string               `json:"categoryId"`
	PillarID            *string               `json:"pillarId"`
}

type AlignmentCreate struct {
	FunctionalType string `json:"functionalType" validate:"required,scorecard_node"`
	FunctionalID   string `json:"functionalId" validate:"required"`
	OrdType        string `json:"ordType" validate:"required,scorecard_node"`
	OrdID          string `json:"ordId" validate:"required"`
	Strength       string `json:"strength" validate:"required,scorecard_strength"`
	Rationale      string `json:"rationale" validate:"max=4000"`
}

type AlignmentUpdate struct {
	ID        string  `json:"id,omitempty"`
	Strength  *string `json:"strength" validate:"omitempty,scorecard_strength"`
	Rationale *string `json:"rationale" validate:"omitempty,max=4000"`
}

// Row views returned by the admin and alignment endpoints.

type PillarRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Function  string    `json:"function"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CategoryRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Comments  string    `json:"comments"`
	PillarID  string    `json:"pillarId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type GoalRow struct {
	ID                  string           `json:"id"`
	Text                string           `json:"text"`
	Status              string           `json:"status"`
	Comments            string           `json:"comments"`
	QuarterlyObjectives schema.Quarterly `json:"quarterlyObjectives"`
	QuarterlyStatuses   schema.Quarterly `json:"quarterlyStatuses"`
	Sponsors            []string         `json:"sponsors"`
	ProgressUpdates     string           `json:"progressUpdates"`
	CategoryID          string           `json:"categoryId"`
	PillarID            string           `json:"pillarId"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

type ProgramRow struct {
	ID                  string           `json:"id"`
	Text                string           `json:"text"`
	QuarterlyObjectives schema.Quarterly `json:"quarterlyObjectives"`
	QuarterlyStatuses   schema.Quarterly `json:"quarterlyStatuses"`
	QuarterlyProgress   schema.Quarterly `json:"quarterlyProgress"`
	Sponsors            []string         `json:"sponsors"`
	ProgressUpdates     string           `json:"progressUpdates"`
	GoalID              string           `json:"goalId"`
	CategoryID          string           `json:"categoryId"`
	PillarID            string           `json:"pillarId"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

type AlignmentRow struct {
	ID             string    `json:"id"`
	FunctionalType string    `json:"functionalType"`
	FunctionalID   string    `json:"functionalId"`
	OrdType        string    `json:"ordType"`
	OrdID          string    `json:"ordId"`
	Strength       string    `json:"strength"`
	Rationale      string    `json:"rationale"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type HistoryRow struct {
	ID            int64     `json:"id"`
	ProgramID     string    `json:"programId"`
	Field         string    `json:"field"`
	PreviousValue string    `json:"previousValue"`
	NewValue      string    `json:"newValue"`
	ChangedBy     string    `json:"changedBy"`
	ChangedAt     time.Time `json:"changedAt"`
}

func pillarRow(p store.Pillar) PillarRow {
	return PillarRow{ID: p.ID, Name: p.Name, Function: p.Function, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

func categoryRow(c store.Category) CategoryRow {
	return CategoryRow{ID: c.ID, Name: c.Name, Status: c.Status, Comments: c.Comments, PillarID: c.PillarID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func goalRow(g store.Goal) GoalRow {
	sponsors := g.Sponsors
	if sponsors == nil {
		sponsors = []string{}
	}
	return GoalRow{
		ID: g.ID, Text: g.Text, Status: g.Status, Comments: g.Comments,
		QuarterlyObjectives: g.Objectives, QuarterlyStatuses: g.Statuses,
		Sponsors: sponsors, ProgressUpdates: g.ProgressUpdates,
		CategoryID: g.CategoryID, PillarID: g.PillarID,
		CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func programRow(p store.Program) ProgramRow {
	sponsors := p.Sponsors
	if sponsors == nil {
		sponsors = []string{}
	}
	return ProgramRow{
		ID: p.ID, Text: p.Text,
		QuarterlyObjectives: p.Objectives, QuarterlyStatuses: p.Statuses, QuarterlyProgress: p.Progress,
		Sponsors: sponsors, ProgressUpdates: p.ProgressUpdates,
		GoalID: p.GoalID, CategoryID: p.CategoryID, PillarID: p.PillarID,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func alignmentRow(a store.Alignment) AlignmentRow {
	return AlignmentRow{
		ID: a.ID, FunctionalType: a.FunctionalType, FunctionalID: a.FunctionalID,
		OrdType: a.OrdType, OrdID: a.OrdID, Strength: a.Strength, Rationale: a.Rationale,
		CreatedBy: a.CreatedBy, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func alignmentRows(items []store.Alignment) []AlignmentRow {
	rows := make([]AlignmentRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, alignmentRow(item))
	}
	return rows
}

func historyRows(items []store.ProgressUpdate) []HistoryRow {
	rows := make([]HistoryRow, 0, len(items))
	for _, h := range items {
		rows = append(rows, HistoryRow{
			ID: h.ID, ProgramID: h.ProgramID, Field: h.Field,
			PreviousValue: h.PreviousValue, NewValue: h.NewValue,
			ChangedBy: h.ChangedBy, ChangedAt: h.ChangedAt,
		})
	}
	return rows
}
