// Package hierarchy assembles the flat scorecard tables into the nested tree
// served to clients.
package hierarchy

import (
	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

type ScoreCard struct {
	Pillars []Pillar `json:"pillars"`
}

type Pillar struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Function   string     `json:"function"`
	Categories []Category `json:"categories"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Comments string `json:"comments"`
	PillarID string `json:"pillarId"`
	Goals    []Goal `json:"goals"`
}

type Goal struct {
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
	Programs            []Program        `json:"programs"`
}

type Program struct {
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
}

// Assemble builds the tree bottom-up. Child order follows the snapshot order.
// Rows whose parent is not in the snapshot are left out, and every child list
// is non-nil so it encodes as [].
func Assemble(snapshot store.Snapshot) ScoreCard {
	programsByGoal := make(map[string][]Program, len(snapshot.Goals))
	for _, p := range snapshot.Programs {
		programsByGoal[p.GoalID] = append(programsByGoal[p.GoalID], programFromRow(p))
	}

	goalsByCategory := make(map[string][]Goal, len(snapshot.Categories))
	for _, g := range snapshot.Goals {
		goal := goalFromRow(g)
		goal.Programs = nonNil(programsByGoal[g.ID])
		goalsByCategory[g.CategoryID] = append(goalsByCategory[g.CategoryID], goal)
	}

	categoriesByPillar := make(map[string][]Category, len(snapshot.Pillars))
	for _, c := range snapshot.Categories {
		categoriesByPillar[c.PillarID] = append(categoriesByPillar[c.PillarID], Category{
			ID:       c.ID,
			Name:     c.Name,
			Status:   c.Status,
			Comments: c.Comments,
			PillarID: c.PillarID,
			Goals:    nonNil(goalsByCategory[c.ID]),
		})
	}

	card := ScoreCard{Pillars: make([]Pillar, 0, len(snapshot.Pillars))}
	for _, p := range snapshot.Pillars {
		card.Pillars = append(card.Pillars, Pillar{
			ID:         p.ID,
			Name:       p.Name,
			Function:   p.Function,
			Categories: nonNil(categoriesByPillar[p.ID]),
		})
	}
	return card
}

func goalFromRow(g store.Goal) Goal {
	return Goal{
		ID:                  g.ID,
		Text:                g.Text,
		Status:              g.Status,
		Comments:            g.Comments,
		QuarterlyObjectives: g.Objectives,
		QuarterlyStatuses:   g.Statuses,
		Sponsors:            nonNil(g.Sponsors),
		ProgressUpdates:     g.ProgressUpdates,
		CategoryID:          g.CategoryID,
		PillarID:            g.PillarID,
	}
}

func programFromRow(p store.Program) Program {
	return Program{
		ID:                  p.ID,
		Text:                p.Text,
		QuarterlyObjectives: p.Objectives,
		QuarterlyStatuses:   p.Statuses,
		QuarterlyProgress:   p.Progress,
		Sponsors:            nonNil(p.Sponsors),
		ProgressUpdates:     p.ProgressUpdates,
		GoalID:              p.GoalID,
		CategoryID:          p.CategoryID,
		PillarID:            p.PillarID,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// FindGoal walks the tree for a goal id.
func (c ScoreCard) FindGoal(id string) (Goal, bool) {
	for _, pillar := range c.Pillars {
		for _, category := range pillar.Categories {
			for _, goal := range category.Goals {
				if goal.ID == id {
					return goal, true
				}
			}
		}
	}
	return Goal{}, false
}

// Split separates the organization-wide pillars from the functional ones,
// keyed by function name.
func (c ScoreCard) Split() (ScoreCard, map[string]ScoreCard) {
	ord := ScoreCard{Pillars: []Pillar{}}
	functional := make(map[string]ScoreCard)
	for _, pillar := range c.Pillars {
		if schema.IsOrd(pillar.Function) {
			ord.Pillars = append(ord.Pillars, pillar)
			continue
		}
		card := functional[pillar.Function]
		card.Pillars = append(card.Pillars, pillar)
		functional[pillar.Function] = card
	}
	return ord, functional
}

type StatusCounts map[schema.Status]int

// StatusCounts tallies goal and program statuses for one quarter. With an
// empty quarter only the overall goal status is counted.
func (c ScoreCard) StatusCounts(quarter schema.Quarter) StatusCounts {
	counts := StatusCounts{}
	for _, pillar := range c.Pillars {
		for _, category := range pillar.Categories {
			for _, goal := range category.Goals {
				if quarter == "" {
					counts[schema.Status(goal.Status)]++
					continue
				}
				counts[schema.Status(goal.QuarterlyStatuses.Get(quarter))]++
				for _, program := range goal.Programs {
					counts[schema.Status(program.QuarterlyStatuses.Get(quarter))]++
				}
			}
		}
	}
	return counts
}
