package app

import (
	"context"
	"strings"

	"taskhub/api/internal/projection"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

type LabelInput struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

func (s *Service) CreateLabel(ctx context.Context, in LabelInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("name", in.Name)
	if err := errs.err(); err != nil {
		return nil, err
	}

	label, err := s.store.CreateLabel(ctx, store.Label{
		ID:       util.NewID("lbl"),
		AuthorID: owner.ID,
		Name:     strings.TrimSpace(in.Name),
	})
	s.record("label_create", err)
	if err != nil {
		return nil, err
	}
	return labelRecord(label), nil
}

func (s *Service) GetLabel(ctx context.Context, labelID, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	label, err := s.authoredLabel(ctx, labelID, owner.ID)
	if err != nil {
		return nil, err
	}
	return labelRecord(label), nil
}

func (s *Service) UpdateLabel(ctx context.Context, labelID string, in LabelInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	if _, err := s.authoredLabel(ctx, labelID, owner.ID); err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("name", in.Name)
	if err := errs.err(); err != nil {
		return nil, err
	}

	label, err := s.store.UpdateLabel(ctx, labelID, strings.TrimSpace(in.Name))
	if err != nil {
		return nil, notFound(err, "label")
	}
	return labelRecord(label), nil
}

func (s *Service) DeleteLabel(ctx context.Context, labelID, identity string) error {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return err
	}
	if _, err := s.authoredLabel(ctx, labelID, owner.ID); err != nil {
		return err
	}
	return s.store.DeleteLabel(ctx, labelID)
}

func (s *Service) authoredLabel(ctx context.Context, labelID, userID string) (store.Label, error) {
	label, err := s.store.GetLabel(ctx, labelID)
	if err != nil {
		return store.Label{}, notFound(err, "label")
	}
	if label.AuthorID != userID {
		return store.Label{}, errNotFound("label")
	}
	return label, nil
}
