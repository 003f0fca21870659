package app

import (
	"context"
	"strings"

	"taskhub/api/internal/projection"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

type UserUpdateInput struct {
	DisplayName *string `json:"display_name"`
	Address     *string `json:"address"`
}

// SettingUpdateInput carries the user-editable settings. Karma is not among
// them; only the ledger changes it.
type SettingUpdateInput struct {
	Identity               string  `json:"identity"`
	Language               *string `json:"language"`
	TimeZone               *string `json:"time_zone"`
	WeeklyBeginning        *int    `json:"weekly_beginning"`
	NextWeekInterpretation *int    `json:"next_week_interpretation"`
	WeekendInterpretation  *int    `json:"weekend_interpretation"`
	Theme                  *string `json:"theme"`
	DailyTaskNumber        *int    `json:"daily_task_number"`
	Holiday                *int    `json:"holiday"`
	VacationMode           *bool   `json:"vacation_mode"`
}

type KarmaInput struct {
	Identity string `json:"identity"`
	Activity string `json:"activity"`
	Point    int    `json:"point"`
}

func (s *Service) GetUser(ctx context.Context, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	return userRecord(owner), nil
}

func (s *Service) UpdateUser(ctx context.Context, identity string, in UserUpdateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		errs := fieldErrors{}
		errs.require("display_name", *in.DisplayName)
		if err := errs.err(); err != nil {
			return nil, err
		}
		owner.DisplayName = strings.TrimSpace(*in.DisplayName)
	}
	if in.Address != nil {
		owner.Address = strings.TrimSpace(*in.Address)
	}
	if err := s.store.UpdateUser(ctx, owner.ID, owner.DisplayName, owner.Address); err != nil {
		return nil, err
	}
	return userRecord(owner), nil
}

// DeleteUser removes the user together with everything they own.
func (s *Service) DeleteUser(ctx context.Context, identity string) error {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return err
	}
	tasks, err := s.store.ListTasksByUser(ctx, owner.ID, "")
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, owner.ID); err != nil {
		return err
	}
	for _, task := range tasks {
		s.search.DeleteTask(task.ID)
	}
	s.log.WithField("user_id", owner.ID).Info("user deleted")
	return nil
}

func (s *Service) GetSetting(ctx context.Context, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	setting, err := s.store.GetSetting(ctx, owner.ID)
	if err != nil {
		return nil, notFound(err, "setting")
	}
	return settingRecord(setting), nil
}

func (s *Service) UpdateSetting(ctx context.Context, in SettingUpdateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	setting, err := s.store.GetSetting(ctx, owner.ID)
	if err != nil {
		return nil, notFound(err, "setting")
	}

	errs := fieldErrors{}
	if in.Language != nil {
		errs.require("language", *in.Language)
		setting.Language = *in.Language
	}
	if in.TimeZone != nil {
		errs.require("time_zone", *in.TimeZone)
		setting.TimeZone = *in.TimeZone
	}
	if in.Theme != nil {
		errs.require("theme", *in.Theme)
		setting.Theme = *in.Theme
	}
	if in.WeeklyBeginning != nil {
		if *in.WeeklyBeginning < 0 || *in.WeeklyBeginning > 6 {
			errs.add("weekly_beginning", "Ensure this value is between 0 and 6.")
		}
		setting.WeeklyBeginning = *in.WeeklyBeginning
	}
	if in.NextWeekInterpretation != nil {
		setting.NextWeekInterpretation = *in.NextWeekInterpretation
	}
	if in.WeekendInterpretation != nil {
		setting.WeekendInterpretation = *in.WeekendInterpretation
	}
	if in.DailyTaskNumber != nil {
		if *in.DailyTaskNumber < 0 {
			errs.add("daily_task_number", "Ensure this value is greater than or equal to 0.")
		}
		setting.DailyTaskNumber = *in.DailyTaskNumber
	}
	if in.Holiday != nil {
		setting.Holiday = *in.Holiday
	}
	if in.VacationMode != nil {
		setting.VacationMode = *in.VacationMode
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateSetting(ctx, setting); err != nil {
		return nil, err
	}
	return settingRecord(setting), nil
}

// CreateKarma appends a ledger entry and adds its points to the user's total.
func (s *Service) CreateKarma(ctx context.Context, in KarmaInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("activity", in.Activity)
	if err := errs.err(); err != nil {
		return nil, err
	}

	var created store.Karma
	err = s.store.WithTx(ctx, func(tx dataStore) error {
		entry, err := tx.CreateKarma(ctx, store.Karma{
			ID:       util.NewID("krm"),
			UserID:   owner.ID,
			Activity: strings.TrimSpace(in.Activity),
			Point:    in.Point,
		})
		if err != nil {
			return err
		}
		created = entry
		return tx.AddKarmaTotal(ctx, owner.ID, in.Point)
	})
	s.record("karma_create", err)
	if err != nil {
		return nil, err
	}
	s.events.RecordKarma(in.Point)
	return karmaRecord(created), nil
}

func (s *Service) GetKarma(ctx context.Context, karmaID, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetKarma(ctx, karmaID)
	if err != nil {
		return nil, notFound(err, "karma")
	}
	if entry.UserID != owner.ID {
		return nil, errNotFound("karma")
	}
	return karmaRecord(entry), nil
}
