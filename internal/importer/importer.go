// Package importer loads the scorecard hierarchy from four XLSX workbooks.
// An import replaces the hierarchy tables entirely.
package importer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

// Loader replaces the hierarchy tables with a snapshot in one transaction.
type Loader interface {
	ReplaceHierarchy(ctx context.Context, snapshot store.Snapshot) (store.ReplaceStats, error)
}

type Importer struct {
	loader Loader
	logger *zap.Logger
}

func New(loader Loader, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{loader: loader, logger: logger.Named("importer")}
}

// Run reads the workbooks and replaces the hierarchy with their content.
func (i *Importer) Run(ctx context.Context, files Files) (store.ReplaceStats, error) {
	snapshot, err := ReadSnapshot(files)
	if err != nil {
		return store.ReplaceStats{}, err
	}
	i.logger.Info("workbooks parsed",
		zap.Int("pillars", len(snapshot.Pillars)),
		zap.Int("categories", len(snapshot.Categories)),
		zap.Int("goals", len(snapshot.Goals)),
		zap.Int("programs", len(snapshot.Programs)),
	)

	stats, err := i.loader.ReplaceHierarchy(ctx, snapshot)
	if err != nil {
		return store.ReplaceStats{}, errors.Wrap(err, "replace hierarchy")
	}
	i.logger.Info("import committed",
		zap.Int("pillars", stats.Pillars),
		zap.Int("categories", stats.Categories),
		zap.Int("goals", stats.Goals),
		zap.Int("programs", stats.Programs),
	)
	return stats, nil
}

// ReadSnapshot parses the four workbooks and checks that every row points at
// an existing parent. Denormalized pillar and category ids are filled from
// the parent row; a non-empty cell that disagrees with the parent is an error.
func ReadSnapshot(files Files) (store.Snapshot, error) {
	var snapshot store.Snapshot

	pillarRows, pillarHeaders, err := readSheet(files.Pillars, PillarSheet.Name)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snapshot.Pillars, err = parsePillars(pillarRows, pillarHeaders); err != nil {
		return store.Snapshot{}, err
	}

	categoryRows, categoryHeaders, err := readSheet(files.Categories, CategorySheet.Name)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snapshot.Categories, err = parseCategories(categoryRows, categoryHeaders, snapshot.Pillars); err != nil {
		return store.Snapshot{}, err
	}

	goalRows, goalHeaders, err := readSheet(files.Goals, GoalSheet.Name)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snapshot.Goals, err = parseGoals(goalRows, goalHeaders, snapshot.Categories); err != nil {
		return store.Snapshot{}, err
	}

	programRows, programHeaders, err := readSheet(files.Programs, ProgramSheet.Name)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snapshot.Programs, err = parsePrograms(programRows, programHeaders, snapshot.Goals); err != nil {
		return store.Snapshot{}, err
	}
	return snapshot, nil
}

// readSheet returns the non-blank data rows of the first sheet and its
// header index. Row numbers are kept 1-based for error messages.
func readSheet(path, label string) ([]sheetRow, headerIndex, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s workbook", strings.ToLower(label))
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.Errorf("%s workbook has no sheets", strings.ToLower(label))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read %s sheet", label)
	}
	if len(rows) == 0 {
		return nil, nil, errors.Errorf("%s sheet is empty", label)
	}

	headers := indexHeaders(rows[0])
	data := make([]sheetRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		data = append(data, sheetRow{number: i + 2, sheet: label, cells: row})
	}
	return data, headers, nil
}

type sheetRow struct {
	number int
	sheet  string
	cells  []string
}

func (r sheetRow) ref() string {
	return rowRef(r.sheet, r.number)
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parsePillars(rows []sheetRow, h headerIndex) ([]store.Pillar, error) {
	if err := h.require(PillarSheet.Name, colID, colName); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	pillars := make([]store.Pillar, 0, len(rows))
	for _, row := range rows {
		p := store.Pillar{
			ID:       h.cell(row.cells, colID),
			Name:     h.cell(row.cells, colName),
			Function: h.cell(row.cells, colFunction),
		}
		if err := checkID(row, p.ID, seen); err != nil {
			return nil, err
		}
		if p.Function == "" {
			p.Function = schema.OrdFunction
		}
		pillars = append(pillars, p)
	}
	return pillars, nil
}

func parseCategories(rows []sheetRow, h headerIndex, pillars []store.Pillar) ([]store.Category, error) {
	if err := h.require(CategorySheet.Name, colID, colName, colPillarID); err != nil {
		return nil, err
	}
	pillarIDs := make(map[string]string, len(pillars))
	for _, p := range pillars {
		pillarIDs[idKey(p.ID)] = p.ID
	}

	seen := map[string]bool{}
	categories := make([]store.Category, 0, len(rows))
	for _, row := range rows {
		c := store.Category{
			ID:       h.cell(row.cells, colID),
			Name:     h.cell(row.cells, colName),
			Comments: h.cell(row.cells, colComments),
			PillarID: h.cell(row.cells, colPillarID),
		}
		if err := checkID(row, c.ID, seen); err != nil {
			return nil, err
		}
		pillarID, ok := pillarIDs[idKey(c.PillarID)]
		if !ok {
			return nil, errors.Errorf("%s: unknown pillar %q", row.ref(), c.PillarID)
		}
		c.PillarID = pillarID
		status, err := statusCell(row, h.cell(row.cells, colStatus))
		if err != nil {
			return nil, err
		}
		c.Status = status
		categories = append(categories, c)
	}
	return categories, nil
}

func parseGoals(rows []sheetRow, h headerIndex, categories []store.Category) ([]store.Goal, error) {
	if err := h.require(GoalSheet.Name, colID, colText, colCategoryID); err != nil {
		return nil, err
	}
	categoryByID := make(map[string]store.Category, len(categories))
	for _, c := range categories {
		categoryByID[idKey(c.ID)] = c
	}

	seen := map[string]bool{}
	goals := make([]store.Goal, 0, len(rows))
	for _, row := range rows {
		g := store.Goal{
			ID:              h.cell(row.cells, colID),
			Text:            h.cell(row.cells, colText),
			Comments:        h.cell(row.cells, colComments),
			Sponsors:        splitSponsors(h.cell(row.cells, colSponsors)),
			ProgressUpdates: h.cell(row.cells, colProgressUpdates),
			CategoryID:      h.cell(row.cells, colCategoryID),
		}
		if err := checkID(row, g.ID, seen); err != nil {
			return nil, err
		}
		category, ok := categoryByID[idKey(g.CategoryID)]
		if !ok {
			return nil, errors.Errorf("%s: unknown category %q", row.ref(), g.CategoryID)
		}
		if err := matchAncestor(row, colPillarID, h.cell(row.cells, colPillarID), category.PillarID); err != nil {
			return nil, err
		}
		g.CategoryID, g.PillarID = category.ID, category.PillarID

		var err error
		if g.Status, err = statusCell(row, h.cell(row.cells, colStatus)); err != nil {
			return nil, err
		}
		for _, quarter := range schema.Quarters {
			g.Objectives.Set(quarter, h.cell(row.cells, quarterHeader(quarter, "Objective")))
			status, err := statusCell(row, h.cell(row.cells, quarterHeader(quarter, "Status")))
			if err != nil {
				return nil, err
			}
			g.Statuses.Set(quarter, status)
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func parsePrograms(rows []sheetRow, h headerIndex, goals []store.Goal) ([]store.Program, error) {
	if err := h.require(ProgramSheet.Name, colID, colText, colGoalID); err != nil {
		return nil, err
	}
	goalByID := make(map[string]store.Goal, len(goals))
	for _, g := range goals {
		goalByID[idKey(g.ID)] = g
	}

	seen := map[string]bool{}
	programs := make([]store.Program, 0, len(rows))
	for _, row := range rows {
		p := store.Program{
			ID:              h.cell(row.cells, colID),
			Text:            h.cell(row.cells, colText),
			Sponsors:        splitSponsors(h.cell(row.cells, colSponsors)),
			ProgressUpdates: h.cell(row.cells, colProgressUpdates),
			GoalID:          h.cell(row.cells, colGoalID),
		}
		if err := checkID(row, p.ID, seen); err != nil {
			return nil, err
		}
		goal, ok := goalByID[idKey(p.GoalID)]
		if !ok {
			return nil, errors.Errorf("%s: unknown goal %q", row.ref(), p.GoalID)
		}
		if err := matchAncestor(row, colCategoryID, h.cell(row.cells, colCategoryID), goal.CategoryID); err != nil {
			return nil, err
		}
		if err := matchAncestor(row, colPillarID, h.cell(row.cells, colPillarID), goal.PillarID); err != nil {
			return nil, err
		}
		p.GoalID, p.CategoryID, p.PillarID = goal.ID, goal.CategoryID, goal.PillarID

		for _, quarter := range schema.Quarters {
			p.Objectives.Set(quarter, h.cell(row.cells, quarterHeader(quarter, "Objective")))
			p.Progress.Set(quarter, h.cell(row.cells, quarterHeader(quarter, "Progress")))
			status, err := statusCell(row, h.cell(row.cells, quarterHeader(quarter, "Status")))
			if err != nil {
				return nil, err
			}
			p.Statuses.Set(quarter, status)
		}
		programs = append(programs, p)
	}
	return programs, nil
}

// idKey is the form ids are compared in; ids that differ only in case name
// the same row.
func idKey(id string) string {
	return strings.ToLower(id)
}

func checkID(row sheetRow, id string, seen map[string]bool) error {
	if id == "" {
		return errors.Errorf("%s: missing %s", row.ref(), colID)
	}
	key := idKey(id)
	if seen[key] {
		return errors.Errorf("%s: duplicate id %q", row.ref(), id)
	}
	seen[key] = true
	return nil
}

func matchAncestor(row sheetRow, column, cell, parent string) error {
	if cell != "" && !strings.EqualFold(cell, parent) {
		return errors.Errorf("%s: %s %q does not match parent %q", row.ref(), column, cell, parent)
	}
	return nil
}

// statusCell maps a BRAG colour to its status. Canonical status names are
// accepted as well; an empty cell leaves the status unset.
func statusCell(row sheetRow, cell string) (string, error) {
	if cell == "" {
		return "", nil
	}
	if status, ok := schema.MapStatus(cell); ok {
		return string(status), nil
	}
	if status, ok := schema.ParseStatus(cell); ok {
		return string(status), nil
	}
	return "", errors.Errorf("%s: unknown status %q", row.ref(), cell)
}

func splitSponsors(cell string) []string {
	sponsors := make([]string, 0)
	for _, part := range strings.FieldsFunc(cell, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		if name := strings.TrimSpace(part); name != "" {
			sponsors = append(sponsors, name)
		}
	}
	return sponsors
}
