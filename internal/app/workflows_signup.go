package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskhub/api/internal/projection"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

type CategoryTemplate struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

type SignupInput struct {
	Identity    string             `json:"identity"`
	DisplayName string             `json:"display_name"`
	Address     string             `json:"address"`
	Categorys   []CategoryTemplate `json:"categorys"`
}

// Signup creates the user, the default setting row and one project per
// category template. Nothing is kept when any step fails.
func (s *Service) Signup(ctx context.Context, in SignupInput) (projection.Record, error) {
	rec, err := s.signup(ctx, in)
	s.record("signup", err)
	return rec, err
}

func (s *Service) signup(ctx context.Context, in SignupInput) (projection.Record, error) {
	identity := strings.TrimSpace(in.Identity)
	errs := fieldErrors{}
	errs.require("identity", identity)
	errs.require("display_name", in.DisplayName)
	for i, c := range in.Categorys {
		errs.require(fmt.Sprintf("categorys[%d].name", i), c.Name)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByIdentity(ctx, identity); err == nil {
		return nil, errDuplicateIdentity()
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check identity: %w", err)
	}

	var created store.User
	err := s.store.WithTx(ctx, func(tx dataStore) error {
		user, err := tx.CreateUser(ctx, store.User{
			ID:          util.NewID("usr"),
			Identity:    identity,
			DisplayName: strings.TrimSpace(in.DisplayName),
			Address:     strings.TrimSpace(in.Address),
		})
		if errors.Is(err, store.ErrDuplicate) {
			return errDuplicateIdentity()
		}
		if err != nil {
			return err
		}
		if err := tx.CreateSetting(ctx, store.DefaultSetting(user.ID)); err != nil {
			return err
		}
		for i, c := range in.Categorys {
			project, err := tx.CreateProject(ctx, store.Project{
				ID:        util.NewID("prj"),
				CreatorID: user.ID,
				Name:      strings.TrimSpace(c.Name),
				Color:     c.Color,
				Icon:      c.Icon,
				Index:     i + 1,
			})
			if err != nil {
				return err
			}
			if err := tx.AddProjectMember(ctx, project.ID, user.ID); err != nil {
				return err
			}
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("user_id", created.ID).WithField("categories", len(in.Categorys)).Info("user signed up")
	return userRecord(created), nil
}

// AppInit returns everything the client needs on launch: the user's own
// projects in creator order, their labels and their karma ledger.
func (s *Service) AppInit(ctx context.Context, identity string) (map[string]any, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	viewer := Viewer{UserID: owner.ID}

	projects, err := s.store.ListProjectsByCreator(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	categorys, err := s.projectRecords(ctx, viewer, projects)
	if err != nil {
		return nil, err
	}

	labels, err := s.store.ListLabelsByAuthor(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	labelRecs := make([]projection.Record, 0, len(labels))
	for _, label := range labels {
		labelRecs = append(labelRecs, labelRecord(label))
	}

	entries, err := s.store.ListKarmaByUser(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list karma: %w", err)
	}
	karmaRecs := make([]projection.Record, 0, len(entries))
	for _, entry := range entries {
		karmaRecs = append(karmaRecs, karmaRecord(entry))
	}

	return map[string]any{
		"categorys": categorys,
		"labels":    labelRecs,
		"karma":     karmaRecs,
		"result":    true,
	}, nil
}

// DefaultCategories offers the category templates to identities that have
// not signed up yet. Known identities get {"result": false}.
func (s *Service) DefaultCategories(ctx context.Context, identity string) (map[string]any, error) {
	identity = strings.TrimSpace(identity)
	errs := fieldErrors{}
	errs.require("identity", identity)
	if err := errs.err(); err != nil {
		return nil, err
	}

	_, err := s.store.GetUserByIdentity(ctx, identity)
	if err == nil {
		return map[string]any{"result": false}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check identity: %w", err)
	}

	items, err := s.store.ListDefaultCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list default categories: %w", err)
	}
	recs := make([]projection.Record, 0, len(items))
	for _, item := range items {
		recs = append(recs, defaultCategoryRecord(item))
	}
	return map[string]any{"default_categorys": recs, "result": true}, nil
}
