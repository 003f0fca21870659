package app

import (
	"context"
	"fmt"
	"strings"

	"taskhub/api/internal/projection"
	"taskhub/api/internal/rbac"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

type ProjectCreateInput struct {
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	Icon         string `json:"icon"`
	Comment      string `json:"comment"`
	IsCompPublic bool   `json:"is_comp_public"`
	IsFavorite   bool   `json:"is_favorite"`
}

// ProjectUpdateInput overwrites name and color. The pointer fields are
// tri-state: nil leaves the value alone.
type ProjectUpdateInput struct {
	Identity     string  `json:"identity"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	Icon         *string `json:"icon"`
	Comment      *string `json:"comment"`
	IsCompPublic *bool   `json:"is_comp_public"`
	Deleted      *bool   `json:"deleted"`
	IsFavorite   *bool   `json:"is_favorite"`
	IsArchived   *bool   `json:"is_archived"`
}

func (s *Service) CreateProject(ctx context.Context, in ProjectCreateInput) (projection.Record, error) {
	rec, err := s.createProject(ctx, in)
	s.record("project_create", err)
	return rec, err
}

func (s *Service) createProject(ctx context.Context, in ProjectCreateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("name", in.Name)
	if err := errs.err(); err != nil {
		return nil, err
	}

	var created store.Project
	err = s.store.WithTx(ctx, func(tx dataStore) error {
		index, err := tx.NextProjectIndex(ctx, owner.ID)
		if err != nil {
			return err
		}
		project, err := tx.CreateProject(ctx, store.Project{
			ID:           util.NewID("prj"),
			CreatorID:    owner.ID,
			Name:         strings.TrimSpace(in.Name),
			Color:        in.Color,
			Icon:         in.Icon,
			Index:        index,
			Comment:      in.Comment,
			IsCompPublic: in.IsCompPublic,
		})
		if err != nil {
			return err
		}
		if err := tx.AddProjectMember(ctx, project.ID, owner.ID); err != nil {
			return err
		}
		if in.IsFavorite {
			if err := tx.SetProjectFlag(ctx, store.ProjectFavorites, project.ID, owner.ID, true); err != nil {
				return err
			}
		}
		created = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.projectRecord(ctx, Viewer{UserID: owner.ID}, created)
}

// GetProject returns a project as seen by identity. Any registered identity
// may read a project by id; favorite and archived reflect that identity.
func (s *Service) GetProject(ctx context.Context, projectID, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, notFound(err, "project")
	}
	return s.projectRecord(ctx, Viewer{UserID: owner.ID}, project)
}

func (s *Service) UpdateProject(ctx context.Context, projectID string, in ProjectUpdateInput) (projection.Record, error) {
	rec, err := s.updateProject(ctx, projectID, in)
	s.record("project_update", err)
	return rec, err
}

func (s *Service) updateProject(ctx context.Context, projectID string, in ProjectUpdateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	project, err := s.memberProject(ctx, projectID, owner.ID)
	if err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("name", in.Name)
	if err := errs.err(); err != nil {
		return nil, err
	}

	project.Name = strings.TrimSpace(in.Name)
	project.Color = in.Color
	if in.Icon != nil {
		project.Icon = *in.Icon
	}
	if in.Comment != nil {
		project.Comment = *in.Comment
	}
	if in.IsCompPublic != nil {
		project.IsCompPublic = *in.IsCompPublic
	}
	if in.Deleted != nil {
		project.Deleted = *in.Deleted
	}

	err = s.store.WithTx(ctx, func(tx dataStore) error {
		if err := tx.UpdateProject(ctx, project); err != nil {
			return err
		}
		if in.IsFavorite != nil {
			if err := tx.SetProjectFlag(ctx, store.ProjectFavorites, project.ID, owner.ID, *in.IsFavorite); err != nil {
				return err
			}
		}
		if in.IsArchived != nil {
			if err := tx.SetProjectFlag(ctx, store.ProjectArchives, project.ID, owner.ID, *in.IsArchived); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.projectRecord(ctx, Viewer{UserID: owner.ID}, project)
}

// DeleteProject removes the project and everything under it. Only the
// creator may delete.
func (s *Service) DeleteProject(ctx context.Context, projectID, identity string) error {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return err
	}
	project, err := s.authorizedProject(ctx, projectID, owner.ID, rbac.ActionDelete)
	if err != nil {
		return err
	}
	tasks, err := s.store.ListTasksByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("list project tasks: %w", err)
	}
	if err := s.store.DeleteProject(ctx, project.ID); err != nil {
		return err
	}
	for _, task := range tasks {
		s.search.DeleteTask(task.ID)
	}
	s.record("project_delete", nil)
	return nil
}

// memberProject loads a project the user may write to.
func (s *Service) memberProject(ctx context.Context, projectID, userID string) (store.Project, error) {
	return s.authorizedProject(ctx, projectID, userID, rbac.ActionWrite)
}

// authorizedProject loads a project and checks action against the user's
// relation to it. Denied projects are reported as missing.
func (s *Service) authorizedProject(ctx context.Context, projectID, userID string, action rbac.Action) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, notFound(err, "project")
	}
	member, err := s.store.IsProjectMember(ctx, project.ID, userID)
	if err != nil {
		return store.Project{}, fmt.Errorf("check project member: %w", err)
	}
	if !rbac.Can(rbac.RoleFor(project.CreatorID, userID, member), action) {
		return store.Project{}, errNotFound("project")
	}
	return project, nil
}
