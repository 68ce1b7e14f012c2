package store

import (
	"time"

	"scorecard/api/internal/schema"
)

type Pillar struct {
	ID        string
	Name      string
	Function  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Category struct {
	ID        string
	Name      string
	Status    string
	Comments  string
	PillarID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Goal struct {
	ID              string
	Text            string
	Status          string
	Comments        string
	Objectives      schema.Quarterly
	Statuses        schema.Quarterly
	Sponsors        []string
	ProgressUpdates string
	CategoryID      string
	PillarID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Program struct {
	ID              string
	Text            string
	Objectives      schema.Quarterly
	Statuses        schema.Quarterly
	Progress        schema.Quarterly
	Sponsors        []string
	ProgressUpdates string
	GoalID          string
	CategoryID      string
	PillarID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot is the flat content of the four hierarchy tables.
type Snapshot struct {
	Pillars    []Pillar
	Categories []Category
	Goals      []Goal
	Programs   []Program
}

type Alignment struct {
	ID             string
	FunctionalType string
	FunctionalID   string
	OrdType        string
	OrdID          string
	Strength       string
	Rationale      string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ProgressUpdate struct {
	ID            int64
	ProgramID     string
	Field         string
	PreviousValue string
	NewValue      string
	ChangedBy     string
	ChangedAt     time.Time
}

// Ancestry is the parent chain of a row. Fields above the row's level are set,
// the rest are empty.
type Ancestry struct {
	PillarID   string
	CategoryID string
	GoalID     string
}

// Node identifies one hierarchy row together with the function of its pillar.
type Node struct {
	Type     schema.NodeType
	ID       string
	Label    string
	Function string
	PillarID string
}

// Option is one entry of a cascading dropdown.
type Option struct {
	ID    string
	Label string
}
