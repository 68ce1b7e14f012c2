package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scorecard/api/internal/hierarchy"
	"scorecard/api/internal/importer"
	"scorecard/api/internal/store"
)

// DataStore reads the scorecard tables, optionally restricted to one
// function's pillars.
type DataStore interface {
	Snapshot(ctx context.Context, function string) (store.Snapshot, error)
}

// Service provides scorecard export functionality
type Service struct {
	store  DataStore
	logger *zap.Logger
	now    func() time.Time
	pdf    func(ctx context.Context, html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService(store DataStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("export"), now: time.Now, pdf: exportPDF}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	format, ok := ParseFormat(string(req.Format))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}

	snapshot, err := s.store.Snapshot(ctx, req.Function)
	if err != nil {
		return nil, fmt.Errorf("load scorecard: %w", err)
	}

	title := "Scorecard"
	if req.Function != "" {
		title = req.Function + " Scorecard"
	}

	var result *Result
	switch format {
	case FormatPDF:
		result, err = s.exportPDF(ctx, snapshot, title, req.Function)
	default:
		result, err = exportXLSX(snapshot, title)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("scorecard exported",
		zap.String("format", string(format)),
		zap.String("function", req.Function),
		zap.Int("bytes", len(result.Data)),
	)
	return result, nil
}

func (s *Service) exportPDF(ctx context.Context, snapshot store.Snapshot, title, function string) (*Result, error) {
	card := hierarchy.Assemble(snapshot)
	html, err := RenderScorecardHTML(TemplateData{
		Title:       title,
		Function:    function,
		GeneratedAt: s.now().UTC(),
		Summary:     statusSummary(card),
		Pillars:     card.Pillars,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return s.pdf(ctx, html, title)
}

func exportXLSX(snapshot store.Snapshot, title string) (*Result, error) {
	f, err := importer.EncodeWorkbook(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(title) + ".xlsx",
		MimeType: xlsxMimeType,
	}, nil
}
