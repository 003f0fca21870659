package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskhub/api/internal/config"
	"taskhub/api/internal/datetime"
	"taskhub/api/internal/projection"
	"taskhub/api/internal/search"
	"taskhub/api/internal/store"
	"taskhub/api/internal/util"
)

const activityTaskCompleted = "task_completed"

type TaskCreateInput struct {
	Identity    string   `json:"identity"`
	ProjectName string   `json:"project_name"`
	Content     string   `json:"content"`
	Comment     string   `json:"comment"`
	Priority    int      `json:"priority"`
	DeadlineStr string   `json:"deadline_str"`
	RemindStr   string   `json:"remind_str"`
	SectionName string   `json:"section_name"`
	LabelList   []string `json:"label_list"`
}

// TaskUpdateInput changes only the fields that are present. An empty
// section_name detaches the section; an empty deadline_str clears it.
type TaskUpdateInput struct {
	Identity        string    `json:"identity"`
	ProjectName     *string   `json:"project_name"`
	Content         *string   `json:"content"`
	Comment         *string   `json:"comment"`
	Priority        *int      `json:"priority"`
	DeadlineStr     *string   `json:"deadline_str"`
	RemindStr       *string   `json:"remind_str"`
	SectionName     *string   `json:"section_name"`
	LabelList       *[]string `json:"label_list"`
	Completed       *bool     `json:"completed"`
	Deleted         *bool     `json:"deleted"`
	IsCompSubPublic *bool     `json:"is_comp_sub_public"`
}

func (s *Service) CreateTask(ctx context.Context, in TaskCreateInput) (projection.Record, error) {
	rec, err := s.createTask(ctx, in)
	s.record("task_create", err)
	return rec, err
}

func (s *Service) createTask(ctx context.Context, in TaskCreateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	errs.require("content", in.Content)
	if err := errs.err(); err != nil {
		return nil, err
	}

	project, err := s.store.FindProjectByNameAndCreator(ctx, in.ProjectName, owner.ID)
	if err != nil {
		return nil, notFound(err, "project")
	}
	sectionID, err := s.resolveSection(ctx, in.SectionName)
	if err != nil {
		return nil, err
	}
	deadline, err := parseTimestamp("deadline_str", in.DeadlineStr)
	if err != nil {
		return nil, err
	}
	remind, err := parseTimestamp("remind_str", in.RemindStr)
	if err != nil {
		return nil, err
	}

	var (
		created  store.Task
		labelErr error
	)
	err = s.store.WithTx(ctx, func(tx dataStore) error {
		task, err := tx.CreateTask(ctx, store.Task{
			ID:        util.NewID("tsk"),
			UserID:    owner.ID,
			ProjectID: project.ID,
			SectionID: sectionID,
			Content:   in.Content,
			Comment:   in.Comment,
			Priority:  in.Priority,
			Deadline:  deadline,
			Remind:    remind,
		})
		if err != nil {
			return err
		}
		created = task

		for _, name := range in.LabelList {
			label, err := tx.FindLabelByName(ctx, name)
			if errors.Is(err, sql.ErrNoRows) {
				labelErr = errNotFound("label")
				if s.cfg.TaskLabelPolicy == config.LabelPolicyAtomic {
					return labelErr
				}
				// Partial policy: keep the task and the labels attached so far.
				return nil
			}
			if err != nil {
				return fmt.Errorf("find label: %w", err)
			}
			if err := tx.AttachLabel(ctx, task.ID, label.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.search.IndexTask(taskSearchRecord(created))
	if labelErr != nil {
		s.log.WithField("task_id", created.ID).Warn("task created with unresolved label")
		return nil, labelErr
	}
	return s.taskRecord(ctx, created)
}

func (s *Service) GetTask(ctx context.Context, taskID, identity string) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return nil, err
	}
	task, err := s.ownedTask(ctx, taskID, owner.ID)
	if err != nil {
		return nil, err
	}
	return s.taskRecord(ctx, task)
}

func (s *Service) UpdateTask(ctx context.Context, taskID string, in TaskUpdateInput) (projection.Record, error) {
	rec, err := s.updateTask(ctx, taskID, in)
	s.record("task_update", err)
	return rec, err
}

func (s *Service) updateTask(ctx context.Context, taskID string, in TaskUpdateInput) (projection.Record, error) {
	owner, err := s.resolveOwner(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	task, err := s.ownedTask(ctx, taskID, owner.ID)
	if err != nil {
		return nil, err
	}
	wasCompleted := task.Completed

	if in.Content != nil {
		errs := fieldErrors{}
		errs.require("content", *in.Content)
		if err := errs.err(); err != nil {
			return nil, err
		}
		task.Content = *in.Content
	}
	if in.ProjectName != nil {
		project, err := s.store.FindProjectByNameAndCreator(ctx, *in.ProjectName, owner.ID)
		if err != nil {
			return nil, notFound(err, "project")
		}
		task.ProjectID = project.ID
	}
	if in.SectionName != nil {
		if task.SectionID, err = s.resolveSection(ctx, *in.SectionName); err != nil {
			return nil, err
		}
	}
	if in.DeadlineStr != nil {
		if task.Deadline, err = parseTimestamp("deadline_str", *in.DeadlineStr); err != nil {
			return nil, err
		}
	}
	if in.RemindStr != nil {
		if task.Remind, err = parseTimestamp("remind_str", *in.RemindStr); err != nil {
			return nil, err
		}
	}
	if in.Comment != nil {
		task.Comment = *in.Comment
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.Completed != nil {
		task.Completed = *in.Completed
	}
	if in.Deleted != nil {
		task.Deleted = *in.Deleted
	}
	if in.IsCompSubPublic != nil {
		task.IsCompSubPublic = *in.IsCompSubPublic
	}

	// Labels are resolved up front so a replacement list is all or nothing.
	var labelIDs []string
	if in.LabelList != nil {
		for _, name := range *in.LabelList {
			label, err := s.store.FindLabelByName(ctx, name)
			if err != nil {
				return nil, notFound(err, "label")
			}
			labelIDs = append(labelIDs, label.ID)
		}
	}

	awarded := 0
	var updated store.Task
	err = s.store.WithTx(ctx, func(tx dataStore) error {
		saved, err := tx.UpdateTask(ctx, task)
		if err != nil {
			return err
		}
		updated = saved

		if in.LabelList != nil {
			if err := tx.DetachLabels(ctx, task.ID); err != nil {
				return err
			}
			for _, labelID := range labelIDs {
				if err := tx.AttachLabel(ctx, task.ID, labelID); err != nil {
					return err
				}
			}
		}

		if !wasCompleted && task.Completed {
			point := s.karmaTaskPoint()
			if _, err := tx.CreateKarma(ctx, store.Karma{
				ID:       util.NewID("krm"),
				UserID:   owner.ID,
				Activity: activityTaskCompleted,
				Point:    point,
			}); err != nil {
				return err
			}
			if err := tx.AddKarmaTotal(ctx, owner.ID, point); err != nil {
				return err
			}
			awarded = point
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if awarded > 0 {
		s.events.RecordKarma(awarded)
	}
	s.search.IndexTask(taskSearchRecord(updated))
	return s.taskRecord(ctx, updated)
}

func (s *Service) DeleteTask(ctx context.Context, taskID, identity string) error {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return err
	}
	task, err := s.ownedTask(ctx, taskID, owner.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, task.ID); err != nil {
		return err
	}
	s.search.DeleteTask(task.ID)
	s.record("task_delete", nil)
	return nil
}

// SearchTasks runs a full-text query over the identity's own tasks.
func (s *Service) SearchTasks(ctx context.Context, identity string, q search.Query) (search.Response, error) {
	owner, err := s.resolveOwner(ctx, identity)
	if err != nil {
		return search.Response{}, err
	}
	errs := fieldErrors{}
	errs.require("q", q.Text)
	if err := errs.err(); err != nil {
		return search.Response{}, err
	}
	q.UserID = owner.ID
	return s.search.Search(ctx, q), nil
}

// ownedTask loads a task assigned to userID. Tasks of other users are
// reported as missing.
func (s *Service) ownedTask(ctx context.Context, taskID, userID string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, notFound(err, "task")
	}
	if task.UserID != userID {
		return store.Task{}, errNotFound("task")
	}
	return task, nil
}

// resolveSection looks the section up by name across all projects. An empty
// name means no section.
func (s *Service) resolveSection(ctx context.Context, name string) (*string, error) {
	if name == "" {
		return nil, nil
	}
	section, err := s.store.FindSectionByName(ctx, name)
	if err != nil {
		return nil, notFound(err, "section")
	}
	return &section.ID, nil
}

func (s *Service) karmaTaskPoint() int {
	if s.cfg.KarmaTaskPoint <= 0 {
		return 1
	}
	return s.cfg.KarmaTaskPoint
}

func parseTimestamp(field, value string) (*time.Time, error) {
	parsed, err := datetime.ParseInput(value)
	if err != nil {
		return nil, errMalformedTimestamp(field)
	}
	return parsed, nil
}

func taskSearchRecord(t store.Task) search.TaskRecord {
	return search.TaskRecord{
		ID:        t.ID,
		UserID:    t.UserID,
		ProjectID: t.ProjectID,
		Content:   t.Content,
		Comment:   t.Comment,
		Completed: t.Completed,
	}
}
