// Package workbook edits the scorecard workbooks in place: one cell,
// addressed by row id and column header.
package workbook

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"scorecard/api/internal/importer"
)

var (
	ErrUnknownSheet  = errors.New("unknown sheet")
	ErrUnknownColumn = errors.New("unknown column")
	ErrRowNotFound   = errors.New("row not found")
	ErrMissingID     = errors.New("row id is required")
)

// sheets lists the addressable workbooks by the name clients use.
var sheets = map[string]string{
	"pillars":    importer.PillarSheet.File,
	"categories": importer.CategorySheet.File,
	"goals":      importer.GoalSheet.File,
	"programs":   importer.ProgramSheet.File,
}

type Update struct {
	Sheet  string `json:"sheet"`
	ID     string `json:"id"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Editor serializes writes per process; concurrent edits of the same file
// from other processes are not coordinated.
type Editor struct {
	dir string
	mu  sync.Mutex
}

func NewEditor(dir string) *Editor {
	return &Editor{dir: dir}
}

func normalize(value string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(value)))
}

// Apply rewrites one cell and saves the workbook. The header row is searched
// case-insensitively for the column and the ID column for the row id.
// It returns the cell's previous value.
func (e *Editor) Apply(u Update) (string, error) {
	file, ok := sheets[strings.ToLower(strings.TrimSpace(u.Sheet))]
	if !ok {
		return "", errors.Wrapf(ErrUnknownSheet, "sheet %q", u.Sheet)
	}
	wanted := strings.TrimSpace(u.ID)
	if wanted == "" {
		return "", ErrMissingID
	}
	path := filepath.Join(e.dir, file)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "stat %s", file)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", file)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", file)
	}
	if len(rows) == 0 {
		return "", errors.Wrapf(ErrUnknownColumn, "%s has no header row", file)
	}

	idColumn, target := -1, -1
	for i, header := range rows[0] {
		key := normalize(header)
		if key == "id" && idColumn < 0 {
			idColumn = i
		}
		if key == normalize(u.Column) && target < 0 {
			target = i
		}
	}
	if idColumn < 0 {
		return "", errors.Wrapf(ErrUnknownColumn, "%s has no ID column", file)
	}
	if target < 0 || normalize(u.Column) == "" {
		return "", errors.Wrapf(ErrUnknownColumn, "column %q", u.Column)
	}
	if target == idColumn {
		return "", errors.Wrap(ErrUnknownColumn, "the ID column is not editable")
	}

	for r, row := range rows[1:] {
		if idColumn >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idColumn])
		if id == "" || !strings.EqualFold(id, wanted) {
			continue
		}
		previous := ""
		if target < len(row) {
			previous = row[target]
		}
		cell, err := excelize.CoordinatesToCellName(target+1, r+2)
		if err != nil {
			return "", errors.Wrap(err, "cell name")
		}
		if err := f.SetCellStr(sheet, cell, u.Value); err != nil {
			return "", errors.Wrapf(err, "set %s", cell)
		}
		if err := f.Save(); err != nil {
			return "", errors.Wrapf(err, "save %s", file)
		}
		return previous, nil
	}
	return "", errors.Wrapf(ErrRowNotFound, "%s id %q", u.Sheet, u.ID)
}
