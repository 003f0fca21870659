package app

import (
	"context"
	"fmt"
	"strings"

	"taskhub/api/internal/projection"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

type SectionCreateInput struct {
	Identity      string `json:"identity"`
	TargetProject string `json:"target_project"`
	Name          string `json:"name"`
}

type SectionUpdateInput struct {
	Identity string  `json:"identity"`
	Name     *string `json:"name"`
	Deleted  *bool   `json:"deleted"`
	Archived *bool   `json:"archived"`
}

func (s *Service) CreateSection(ctx context.Context, in SectionCreateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("target_project", in.TargetProject)
	errs.require("name", in.Name)
	if err := errs.err(); err != nil {
		return nil, err
	}
	project, err := s.memberProject(ctx, in.TargetProject, owner.ID)
	if err != nil {
		return nil, err
	}

	section, err := s.store.CreateSection(ctx, store.Section{
		ID:        util.NewID("sec"),
		ProjectID: project.ID,
		Name:      strings.TrimSpace(in.Name),
	})
	s.record("section_create", err)
	if err != nil {
		return nil, err
	}
	return s.sectionRecord(ctx, section)
}

func (s *Service) GetSection(ctx context.Context, sectionID, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	section, err := s.memberSection(ctx, sectionID, owner.ID)
	if err != nil {
		return nil, err
	}
	return s.sectionRecord(ctx, section)
}

func (s *Service) UpdateSection(ctx context.Context, sectionID string, in SectionUpdateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	section, err := s.memberSection(ctx, sectionID, owner.ID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		errs := fieldErrors{}
		errs.require("name", *in.Name)
		if err := errs.err(); err != nil {
			return nil, err
		}
		section.Name = strings.TrimSpace(*in.Name)
	}
	if in.Deleted != nil {
		section.Deleted = *in.Deleted
	}
	if in.Archived != nil {
		section.Archived = *in.Archived
	}
	if err := s.store.UpdateSection(ctx, section); err != nil {
		return nil, err
	}
	return s.sectionRecord(ctx, section)
}

func (s *Service) DeleteSection(ctx context.Context, sectionID, identity string) error {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return err
	}
	if _, err := s.memberSection(ctx, sectionID, owner.ID); err != nil {
		return err
	}
	return s.store.DeleteSection(ctx, sectionID)
}

// memberSection loads a section whose project the user belongs to.
func (s *Service) memberSection(ctx context.Context, sectionID, userID string) (store.Section, error) {
	section, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return store.Section{}, notFound(err, "section")
	}
	member, err := s.store.IsProjectMember(ctx, section.ProjectID, userID)
	if err != nil {
		return store.Section{}, fmt.Errorf("check project member: %w", err)
	}
	if !member {
		return store.Section{}, errNotFound("section")
	}
	return section, nil
}
