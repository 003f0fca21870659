package export

import (
	"context"
	"fmt"
	"path"
	"time"
)

// Uploader stores a rendered export and returns a download URL.
type Uploader interface {
	Upload(ctx context.Context, key string, result *Result) (string, error)
}

type Service struct {
	uploader Uploader
	pdf      func(ctx context.Context, html string) ([]byte, error)
	now      func() time.Time
}

// NewService creates an export service. uploader may be nil, in which case
// Publish reports ErrStorageUnavailable.
func NewService(uploader Uploader) *Service {
	return &Service{uploader: uploader, pdf: renderPDF, now: time.Now}
}

// Render produces the export bytes in the requested format.
func (s *Service) Render(ctx context.Context, format Format, project Project) (*Result, error) {
	html, err := RenderProjectHTML(project)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	name := sanitizeFilename(project.Name)
	switch format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Publish renders the export and uploads it under exports/<projectID>/.
func (s *Service) Publish(ctx context.Context, projectID string, format Format, project Project) (string, *Result, error) {
	if s.uploader == nil {
		return "", nil, ErrStorageUnavailable
	}
	result, err := s.Render(ctx, format, project)
	if err != nil {
		return "", nil, err
	}
	key := path.Join("exports", projectID, fmt.Sprintf("%d-%s", s.now().Unix(), result.Filename))
	url, err := s.uploader.Upload(ctx, key, result)
	if err != nil {
		return "", nil, err
	}
	return url, result, nil
}
