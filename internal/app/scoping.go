package app

import (
	"context"
	"fmt"

	"taskhub/api/internal/projection"
	"taskhub/api/internal/store"
)

// Collection reads. Each one resolves the identity first and returns only the
// rows that identity may see; there is no unscoped listing.

func (s *Service) ListUsers(ctx context.Context, identity string) ([]projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	return []projection.Record{userRecord(owner)}, nil
}

// ListProjects returns the projects identity is a member of, in the user's
// membership order.
func (s *Service) ListProjects(ctx context.Context, identity string) ([]projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjectsByMember(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return s.projectRecords(ctx, Viewer{UserID: owner.ID}, projects)
}

// ListSections returns sections of the projects identity belongs to. A
// non-empty projectID narrows the list to that project.
func (s *Service) ListSections(ctx context.Context, identity, projectID string) ([]projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}

	var sections []store.Section
	if projectID == "" {
		sections, err = s.store.ListSectionsForMember(ctx, owner.ID)
	} else {
		if _, err := s.memberProject(ctx, projectID, owner.ID); err != nil {
			return nil, err
		}
		sections, err = s.store.ListSectionsByProject(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	out := make([]projection.Record, 0, len(sections))
	for _, sec := range sections {
		rec, err := s.sectionRecord(ctx, sec)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListTasks returns the tasks assigned to identity, optionally within one
// project.
func (s *Service) ListTasks(ctx context.Context, identity, projectID string) ([]projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksByUser(ctx, owner.ID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return s.taskRecords(ctx, tasks)
}

func (s *Service) ListLabels(ctx context.Context, identity string) ([]projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	labels, err := s.store.ListLabelsByAuthor(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	out := make([]projection.Record, 0, len(labels))
	for _, label := range labels {
		out = append(out, labelRecord(label))
	}
	return out, nil
}

// ListKarma returns the identity's ledger, newest first.
func (s *Service) ListKarma(ctx context.Context, identity string) ([]projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListKarmaByUser(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list karma: %w", err)
	}
	out := make([]projection.Record, 0, len(entries))
	for _, entry := range entries {
		out = append(out, karmaRecord(entry))
	}
	return out, nil
}
