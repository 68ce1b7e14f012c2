package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"scorecard/api/internal/hierarchy"
	"scorecard/api/internal/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

var scorecardTemplate = template.Must(template.New("scorecard.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"brag": func(status string) string {
		return schema.BRAG(schema.Status(status))
	},
	"join": func(values []string) string {
		return strings.Join(values, ", ")
	},
}).ParseFS(templateFS, "templates/scorecard.html"))

// TemplateData holds data for scorecard template rendering
type TemplateData struct {
	Title       string
	Function    string
	GeneratedAt time.Time
	Summary     []StatusTally
	Pillars     []hierarchy.Pillar
}

// StatusTally is one cell of the goal status summary.
type StatusTally struct {
	Status string
	Count  int
}

// statusSummary orders the overall goal status counts for display; unset
// goals come last.
func statusSummary(card hierarchy.ScoreCard) []StatusTally {
	counts := card.StatusCounts("")
	summary := make([]StatusTally, 0, len(schema.Statuses)+1)
	for _, status := range append(append([]schema.Status{}, schema.Statuses...), schema.StatusUnset) {
		summary = append(summary, StatusTally{Status: string(status), Count: counts[status]})
	}
	return summary
}

// RenderScorecardHTML renders the scorecard template with provided data
func RenderScorecardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := scorecardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
