// Package export renders the scorecard as a PDF report or an XLSX workbook.
package export

import (
	"errors"
	"strings"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatPDF:
		return FormatPDF, true
	case FormatXLSX:
		return FormatXLSX, true
	}
	return "", false
}

// Request contains parameters for an export operation
type Request struct {
	Format   Format `json:"format"`
	Function string `json:"function,omitempty"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	// ErrUnsupportedFormat indicates a format other than pdf or xlsx.
	ErrUnsupportedFormat = errors.New("export format not supported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
