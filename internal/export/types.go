// Package export renders a project with its sections and tasks as HTML or PDF.
package export

import "errors"

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format; blank means HTML.
func ParseFormat(raw string) (Format, bool) {
	switch Format(raw) {
	case "", FormatHTML:
		return FormatHTML, true
	case FormatPDF:
		return FormatPDF, true
	default:
		return "", false
	}
}

// Project is the viewer-specific snapshot handed to the renderer. Favorite and
// Archived are already evaluated for the requesting identity.
type Project struct {
	Name        string
	Color       string
	Icon        string
	Comment     string
	Favorite    bool
	Archived    bool
	Owner       string
	GeneratedAt string
	Sections    []Section
	// Tasks without a section.
	Tasks []Task
}

type Section struct {
	Name     string
	Archived bool
	Tasks    []Task
}

type Task struct {
	Content   string
	Comment   string
	Priority  int
	Deadline  string
	Completed bool
	Labels    []string
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is not installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrStorageUnavailable indicates no object store is configured for uploads.
	ErrStorageUnavailable = errors.New("export storage unavailable")
)
