package importer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"scorecard/api/internal/schema"
	"scorecard/api/internal/store"
)

// Column headers of the four workbooks. Lookup ignores case, spaces,
// underscores and hyphens.
const (
	colID              = "ID"
	colName            = "Name"
	colFunction        = "Function"
	colText            = "Text"
	colStatus          = "Status"
	colComments        = "Comments"
	colSponsors        = "Sponsors"
	colProgressUpdates = "Progress Updates"
	colPillarID        = "Pillar ID"
	colCategoryID      = "Category ID"
	colGoalID          = "Goal ID"
)

func quarterHeader(quarter schema.Quarter, suffix string) string {
	return strings.ToUpper(string(quarter)) + " " + suffix
}

func quarterHeaders(suffix string) []string {
	headers := make([]string, 0, len(schema.Quarters))
	for _, quarter := range schema.Quarters {
		headers = append(headers, quarterHeader(quarter, suffix))
	}
	return headers
}

type sheetLayout struct {
	Name    string
	File    string
	Headers []string
}

var (
	PillarSheet = sheetLayout{
		Name:    "Pillars",
		File:    "pillars.xlsx",
		Headers: []string{colID, colName, colFunction},
	}
	CategorySheet = sheetLayout{
		Name:    "Categories",
		File:    "categories.xlsx",
		Headers: []string{colID, colName, colStatus, colComments, colPillarID},
	}
	GoalSheet = sheetLayout{
		Name: "Goals",
		File: "goals.xlsx",
		Headers: concat(
			[]string{colID, colText, colStatus, colComments},
			quarterHeaders("Objective"),
			quarterHeaders("Status"),
			[]string{colSponsors, colProgressUpdates, colCategoryID, colPillarID},
		),
	}
	ProgramSheet = sheetLayout{
		Name: "Programs",
		File: "programs.xlsx",
		Headers: concat(
			[]string{colID, colText},
			quarterHeaders("Objective"),
			quarterHeaders("Status"),
			quarterHeaders("Progress"),
			[]string{colSponsors, colProgressUpdates, colGoalID, colCategoryID, colPillarID},
		),
	}
)

func concat(parts ...[]string) []string {
	var out []string
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// Files names the four workbooks of an import.
type Files struct {
	Pillars    string
	Categories string
	Goals      string
	Programs   string
}

// FilesInDir returns the conventional workbook names inside dir.
func FilesInDir(dir string) Files {
	return Files{
		Pillars:    filepath.Join(dir, PillarSheet.File),
		Categories: filepath.Join(dir, CategorySheet.File),
		Goals:      filepath.Join(dir, GoalSheet.File),
		Programs:   filepath.Join(dir, ProgramSheet.File),
	}
}

func normalizeHeader(header string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(header)))
}

// headerIndex maps normalized header names to column positions.
type headerIndex map[string]int

func indexHeaders(row []string) headerIndex {
	index := make(headerIndex, len(row))
	for i, header := range row {
		key := normalizeHeader(header)
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

// Column returns the position of header, or -1.
func (h headerIndex) Column(header string) int {
	if i, ok := h[normalizeHeader(header)]; ok {
		return i
	}
	return -1
}

func (h headerIndex) require(sheet string, headers ...string) error {
	var missing []string
	for _, header := range headers {
		if h.Column(header) < 0 {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("%s: missing columns %s", sheet, strings.Join(missing, ", "))
	}
	return nil
}

func (h headerIndex) cell(row []string, header string) string {
	i := h.Column(header)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// newSheet adds (or renames the first sheet to) the layout sheet and writes
// its styled header row.
func newSheet(f *excelize.File, layout sheetLayout, first bool) error {
	if first {
		if err := f.SetSheetName(f.GetSheetName(0), layout.Name); err != nil {
			return errors.Wrap(err, "rename sheet")
		}
	} else if _, err := f.NewSheet(layout.Name); err != nil {
		return errors.Wrapf(err, "create sheet %s", layout.Name)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return errors.Wrap(err, "create header style")
	}
	if err := f.SetSheetRow(layout.Name, "A1", &layout.Headers); err != nil {
		return errors.Wrapf(err, "write %s headers", layout.Name)
	}
	last, err := excelize.ColumnNumberToName(len(layout.Headers))
	if err != nil {
		return errors.Wrap(err, "header range")
	}
	if err := f.SetCellStyle(layout.Name, "A1", last+"1", style); err != nil {
		return errors.Wrap(err, "style headers")
	}
	return nil
}

func writeRows(f *excelize.File, layout sheetLayout, rows [][]string) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
		}
		if err := f.SetSheetRow(layout.Name, cell, &values); err != nil {
			return errors.Wrapf(err, "write %s row %d", layout.Name, i+2)
		}
	}
	return nil
}

func joinSponsors(sponsors []string) string {
	return strings.Join(sponsors, ", ")
}

func quarterlyCells(q schema.Quarterly, mapValue func(string) string) []string {
	cells := make([]string, 0, len(schema.Quarters))
	for _, quarter := range schema.Quarters {
		cells = append(cells, mapValue(q.Get(quarter)))
	}
	return cells
}

func identity(value string) string { return value }

func bragCell(status string) string {
	return schema.BRAG(schema.Status(status))
}

func pillarRows(snapshot store.Snapshot) [][]string {
	rows := make([][]string, 0, len(snapshot.Pillars))
	for _, p := range snapshot.Pillars {
		rows = append(rows, []string{p.ID, p.Name, p.Function})
	}
	return rows
}

func categoryRows(snapshot store.Snapshot) [][]string {
	rows := make([][]string, 0, len(snapshot.Categories))
	for _, c := range snapshot.Categories {
		rows = append(rows, []string{c.ID, c.Name, bragCell(c.Status), c.Comments, c.PillarID})
	}
	return rows
}

func goalRows(snapshot store.Snapshot) [][]string {
	rows := make([][]string, 0, len(snapshot.Goals))
	for _, g := range snapshot.Goals {
		rows = append(rows, concat(
			[]string{g.ID, g.Text, bragCell(g.Status), g.Comments},
			quarterlyCells(g.Objectives, identity),
			quarterlyCells(g.Statuses, bragCell),
			[]string{joinSponsors(g.Sponsors), g.ProgressUpdates, g.CategoryID, g.PillarID},
		))
	}
	return rows
}

func programRows(snapshot store.Snapshot) [][]string {
	rows := make([][]string, 0, len(snapshot.Programs))
	for _, p := range snapshot.Programs {
		rows = append(rows, concat(
			[]string{p.ID, p.Text},
			quarterlyCells(p.Objectives, identity),
			quarterlyCells(p.Statuses, bragCell),
			quarterlyCells(p.Progress, identity),
			[]string{joinSponsors(p.Sponsors), p.ProgressUpdates, p.GoalID, p.CategoryID, p.PillarID},
		))
	}
	return rows
}

var sheetWriters = []struct {
	layout sheetLayout
	rows   func(store.Snapshot) [][]string
}{
	{PillarSheet, pillarRows},
	{CategorySheet, categoryRows},
	{GoalSheet, goalRows},
	{ProgramSheet, programRows},
}

// EncodeWorkbook renders the snapshot as one workbook with a sheet per table.
// Statuses are written as BRAG colours so the sheets can be imported again.
func EncodeWorkbook(snapshot store.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	for i, writer := range sheetWriters {
		if err := newSheet(f, writer.layout, i == 0); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeRows(f, writer.layout, writer.rows(snapshot)); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteWorkbooks writes the four import workbooks of a snapshot into dir.
func WriteWorkbooks(dir string, snapshot store.Snapshot) (Files, error) {
	files := FilesInDir(dir)
	paths := []string{files.Pillars, files.Categories, files.Goals, files.Programs}
	for i, writer := range sheetWriters {
		f := excelize.NewFile()
		if err := newSheet(f, writer.layout, true); err != nil {
			_ = f.Close()
			return Files{}, err
		}
		if err := writeRows(f, writer.layout, writer.rows(snapshot)); err != nil {
			_ = f.Close()
			return Files{}, err
		}
		if err := f.SaveAs(paths[i]); err != nil {
			_ = f.Close()
			return Files{}, errors.Wrapf(err, "save %s", paths[i])
		}
		if err := f.Close(); err != nil {
			return Files{}, errors.Wrapf(err, "close %s", paths[i])
		}
	}
	return files, nil
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s row %d", sheet, row)
}
