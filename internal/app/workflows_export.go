package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhub/api/internal/datetime"
	"taskhub/api/internal/export"
	"taskhub/api/internal/store"
)

// ExportProject renders a project with its sections and tasks as seen by
// identity.
func (s *Service) ExportProject(ctx context.Context, projectID, identity, format string) (*export.Result, error) {
	parsed, snapshot, err := s.exportSnapshot(ctx, projectID, identity, format)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Render(ctx, parsed, snapshot)
	s.record("project_export", err)
	if err != nil {
		return nil, mapExportError(err)
	}
	return result, nil
}

// PublishProjectExport renders the project and uploads it to object storage,
// returning a time-limited download URL.
func (s *Service) PublishProjectExport(ctx context.Context, projectID, identity, format string) (string, *export.Result, error) {
	parsed, snapshot, err := s.exportSnapshot(ctx, projectID, identity, format)
	if err != nil {
		return "", nil, err
	}
	url, result, err := s.exporter.Publish(ctx, projectID, parsed, snapshot)
	s.record("project_publish", err)
	if err != nil {
		return "", nil, mapExportError(err)
	}
	return url, result, nil
}

func (s *Service) exportSnapshot(ctx context.Context, projectID, identity, format string) (export.Format, export.Project, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return "", export.Project{}, err
	}
	parsed, ok := export.ParseFormat(format)
	if !ok {
		errs := fieldErrors{}
		errs.add("format", fmt.Sprintf("%q is not a valid choice.", format))
		return "", export.Project{}, errs.err()
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return "", export.Project{}, notFound(err, "project")
	}
	snapshot, err := s.buildExportProject(ctx, Viewer{UserID: owner.ID}, project)
	if err != nil {
		return "", export.Project{}, err
	}
	return parsed, snapshot, nil
}

func (s *Service) buildExportProject(ctx context.Context, viewer Viewer, p store.Project) (export.Project, error) {
	favorite, err := s.viewerFlag(ctx, viewer, store.ProjectFavorites, p.ID)
	if err != nil {
		return export.Project{}, err
	}
	archived, err := s.viewerFlag(ctx, viewer, store.ProjectArchives, p.ID)
	if err != nil {
		return export.Project{}, err
	}
	creator, err := s.store.GetUserByID(ctx, p.CreatorID)
	if err != nil {
		return export.Project{}, fmt.Errorf("load project creator: %w", err)
	}

	tasks, err := s.store.ListTasksByProject(ctx, p.ID)
	if err != nil {
		return export.Project{}, fmt.Errorf("list project tasks: %w", err)
	}
	sections, err := s.store.ListSectionsByProject(ctx, p.ID)
	if err != nil {
		return export.Project{}, fmt.Errorf("list project sections: %w", err)
	}

	bySection := make(map[string][]export.Task, len(sections))
	var loose []export.Task
	for _, task := range tasks {
		item, err := s.exportTask(ctx, task)
		if err != nil {
			return export.Project{}, err
		}
		if task.SectionID != nil {
			bySection[*task.SectionID] = append(bySection[*task.SectionID], item)
			continue
		}
		loose = append(loose, item)
	}

	out := export.Project{
		Name:        p.Name,
		Color:       p.Color,
		Icon:        p.Icon,
		Comment:     p.Comment,
		Favorite:    favorite,
		Archived:    archived,
		Owner:       creator.DisplayName,
		GeneratedAt: datetime.FormatDisplay(time.Now()),
		Tasks:       loose,
	}
	for _, sec := range sections {
		out.Sections = append(out.Sections, export.Section{
			Name:     sec.Name,
			Archived: sec.Archived,
			Tasks:    bySection[sec.ID],
		})
	}
	return out, nil
}

func (s *Service) exportTask(ctx context.Context, t store.Task) (export.Task, error) {
	labels, err := s.store.ListTaskLabels(ctx, t.ID)
	if err != nil {
		return export.Task{}, fmt.Errorf("list task labels: %w", err)
	}
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
	}
	deadline := ""
	if t.Deadline != nil {
		deadline = datetime.FormatDisplay(*t.Deadline)
	}
	return export.Task{
		Content:   t.Content,
		Comment:   t.Comment,
		Priority:  t.Priority,
		Deadline:  deadline,
		Completed: t.Completed,
		Labels:    names,
	}, nil
}

func mapExportError(err error) error {
	switch {
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return errUnavailable("EXPORT_PDF_UNAVAILABLE", "PDF export is not available on this server")
	case errors.Is(err, export.ErrStorageUnavailable):
		return errUnavailable("EXPORT_STORAGE_UNAVAILABLE", "Export storage is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		return errUnavailable("EXPORT_TIMEOUT", "Export timed out")
	default:
		return fmt.Errorf("export project: %w", err)
	}
}
