package app

import (
	"context"
	"fmt"

	"taskhub/api/internal/datetime"
	"taskhub/api/internal/projection"
	"taskhub/api/internal/store"
)

// Viewer is the identity a response is being built for. Per-viewer fields such
// as favorite and archived are computed against it and never stored on the
// entity.
type Viewer struct {
	UserID string
}

var (
	userSchema = projection.Schema{Entity: "user", Fields: []string{
		"identity", "display_name", "address",
	}}
	settingSchema = projection.Schema{Entity: "setting", Fields: []string{
		"target_user", "language", "time_zone", "weekly_beginning", "next_week_interpretation",
		"weekend_interpretation", "theme", "daily_task_number", "holiday", "karma", "vacation_mode",
	}}
	projectSchema = projection.Schema{Entity: "project", Fields: []string{
		"id", "creator", "member", "name", "color", "icon", "index", "favorite", "comment",
		"is_comp_public", "deleted", "archived", "tasks", "sections", "isProject",
	}}
	sectionSchema = projection.Schema{Entity: "section", Fields: []string{
		"id", "target_project", "name", "deleted", "archived", "tasks", "isProject", "target_project_name",
	}}
	taskSchema = projection.Schema{Entity: "task", Fields: []string{
		"id", "target_user", "target_project", "target_section", "content", "label", "priority",
		"deadline", "remind", "comment", "completed", "deleted", "is_comp_sub_public",
		"created_at", "updated_at", "sub_tasks",
	}}
	labelSchema = projection.Schema{Entity: "label", Fields: []string{
		"id", "name", "author", "created_at", "updated_at",
	}}
	karmaSchema = projection.Schema{Entity: "karma", Fields: []string{
		"id", "target_user", "activity", "point", "created_at", "updated_at",
	}}
	defaultCategorySchema = projection.Schema{Entity: "default_category", Fields: []string{
		"name", "color", "icon", "index",
	}}
)

func userRecord(u store.User) projection.Record {
	return projection.Record{
		"identity":     u.Identity,
		"display_name": u.DisplayName,
		"address":      u.Address,
	}
}

func settingRecord(st store.Setting) projection.Record {
	return projection.Record{
		"target_user":              st.UserID,
		"language":                 st.Language,
		"time_zone":                st.TimeZone,
		"weekly_beginning":         st.WeeklyBeginning,
		"next_week_interpretation": st.NextWeekInterpretation,
		"weekend_interpretation":   st.WeekendInterpretation,
		"theme":                    st.Theme,
		"daily_task_number":        st.DailyTaskNumber,
		"holiday":                  st.Holiday,
		"karma":                    st.Karma,
		"vacation_mode":            st.VacationMode,
	}
}

func labelRecord(l store.Label) projection.Record {
	return projection.Record{
		"id":         l.ID,
		"name":       l.Name,
		"author":     l.AuthorID,
		"created_at": datetime.FormatDisplay(l.CreatedAt),
		"updated_at": datetime.FormatDisplay(l.UpdatedAt),
	}
}

func karmaRecord(k store.Karma) projection.Record {
	return projection.Record{
		"id":          k.ID,
		"target_user": k.UserID,
		"activity":    k.Activity,
		"point":       k.Point,
		"created_at":  datetime.FormatDisplay(k.CreatedAt),
		"updated_at":  datetime.FormatDisplay(k.UpdatedAt),
	}
}

func defaultCategoryRecord(d store.DefaultCategory) projection.Record {
	return projection.Record{
		"name":  d.Name,
		"color": d.Color,
		"icon":  d.Icon,
		"index": d.Index,
	}
}

func (s *Service) taskRecord(ctx context.Context, t store.Task) (projection.Record, error) {
	labels, err := s.store.ListTaskLabels(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list task labels: %w", err)
	}
	nested := make([]projection.Record, 0, len(labels))
	for _, label := range labels {
		nested = append(nested, labelRecord(label))
	}

	var section any
	if t.SectionID != nil {
		section = *t.SectionID
	}
	return projection.Record{
		"id":                 t.ID,
		"target_user":        t.UserID,
		"target_project":     t.ProjectID,
		"target_section":     section,
		"content":            t.Content,
		"label":              nested,
		"priority":           t.Priority,
		"deadline":           datetime.FormatDisplayPtr(t.Deadline),
		"remind":             datetime.FormatDisplayPtr(t.Remind),
		"comment":            t.Comment,
		"completed":          t.Completed,
		"deleted":            t.Deleted,
		"is_comp_sub_public": t.IsCompSubPublic,
		"created_at":         datetime.FormatDisplay(t.CreatedAt),
		"updated_at":         datetime.FormatDisplay(t.UpdatedAt),
		"sub_tasks":          nil,
	}, nil
}

func (s *Service) taskRecords(ctx context.Context, tasks []store.Task) ([]projection.Record, error) {
	out := make([]projection.Record, 0, len(tasks))
	for _, task := range tasks {
		rec, err := s.taskRecord(ctx, task)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) sectionRecord(ctx context.Context, sec store.Section) (projection.Record, error) {
	tasks, err := s.store.ListTasksBySection(ctx, sec.ID)
	if err != nil {
		return nil, fmt.Errorf("list section tasks: %w", err)
	}
	nested, err := s.taskRecords(ctx, tasks)
	if err != nil {
		return nil, err
	}
	return projection.Record{
		"id":                  sec.ID,
		"target_project":      sec.ProjectID,
		"name":                sec.Name,
		"deleted":             sec.Deleted,
		"archived":            sec.Archived,
		"tasks":               nested,
		"isProject":           false,
		"target_project_name": sec.ProjectName,
	}, nil
}

func (s *Service) projectRecord(ctx context.Context, viewer Viewer, p store.Project) (projection.Record, error) {
	members, err := s.store.ListProjectMembers(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	favorite, err := s.viewerFlag(ctx, viewer, store.ProjectFavorites, p.ID)
	if err != nil {
		return nil, err
	}
	archived, err := s.viewerFlag(ctx, viewer, store.ProjectArchives, p.ID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasksByProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	taskRecs, err := s.taskRecords(ctx, tasks)
	if err != nil {
		return nil, err
	}

	sections, err := s.store.ListSectionsByProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list project sections: %w", err)
	}
	sectionRecs := make([]projection.Record, 0, len(sections))
	for _, sec := range sections {
		rec, err := s.sectionRecord(ctx, sec)
		if err != nil {
			return nil, err
		}
		sectionRecs = append(sectionRecs, rec)
	}

	if members == nil {
		members = []string{}
	}
	return projection.Record{
		"id":             p.ID,
		"creator":        p.CreatorID,
		"member":         members,
		"name":           p.Name,
		"color":          p.Color,
		"icon":           p.Icon,
		"index":          p.Index,
		"favorite":       favorite,
		"comment":        p.Comment,
		"is_comp_public": p.IsCompPublic,
		"deleted":        p.Deleted,
		"archived":       archived,
		"tasks":          taskRecs,
		"sections":       sectionRecs,
		"isProject":      true,
	}, nil
}

func (s *Service) projectRecords(ctx context.Context, viewer Viewer, projects []store.Project) ([]projection.Record, error) {
	out := make([]projection.Record, 0, len(projects))
	for _, p := range projects {
		rec, err := s.projectRecord(ctx, viewer, p)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// viewerFlag reports whether the viewer belongs to the given per-project set.
// Anonymous viewers belong to none.
func (s *Service) viewerFlag(ctx context.Context, viewer Viewer, set store.ProjectSet, projectID string) (bool, error) {
	if viewer.UserID == "" {
		return false, nil
	}
	member, err := s.store.HasProjectFlag(ctx, set, projectID, viewer.UserID)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", set, err)
	}
	return member, nil
}
