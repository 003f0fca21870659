package store

import (
	"context"
	"fmt"
)

const taskColumns = `id, user_id, project_id, section_id, content, comment, priority, deadline, remind,
	completed, deleted, is_comp_sub_public, created_at, updated_at`

func scanTask(row rowScanner) (Task, error) {
	var item Task
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.ProjectID,
		&item.SectionID,
		&item.Content,
		&item.Comment,
		&item.Priority,
		&item.Deadline,
		&item.Remind,
		&item.Completed,
		&item.Deleted,
		&item.IsCompSubPublic,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, item Task) (Task, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO tasks (
			id, user_id, project_id, section_id, content, comment, priority, deadline, remind,
			completed, deleted, is_comp_sub_public
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, item.ID, item.UserID, item.ProjectID, item.SectionID, item.Content, item.Comment, item.Priority,
		item.Deadline, item.Remind, item.Completed, item.Deleted, item.IsCompSubPublic).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Task{}, mapInsertError("insert task", err)
	}
	return item, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	return scanTask(row)
}

func (s *PostgresStore) UpdateTask(ctx context.Context, item Task) (Task, error) {
	err := s.q.QueryRowContext(ctx, `
		UPDATE tasks
		SET project_id=$2, section_id=$3, content=$4, comment=$5, priority=$6, deadline=$7, remind=$8,
			completed=$9, deleted=$10, is_comp_sub_public=$11, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, item.ID, item.ProjectID, item.SectionID, item.Content, item.Comment, item.Priority, item.Deadline,
		item.Remind, item.Completed, item.Deleted, item.IsCompSubPublic).Scan(&item.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) listTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

// ListTasksByUser returns the user's tasks, narrowed to one project when
// projectID is not empty.
func (s *PostgresStore) ListTasksByUser(ctx context.Context, userID, projectID string) ([]Task, error) {
	if projectID == "" {
		return s.listTasks(ctx, `
			SELECT `+taskColumns+` FROM tasks WHERE user_id=$1 ORDER BY created_at ASC, id ASC
		`, userID)
	}
	return s.listTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE user_id=$1 AND project_id=$2 ORDER BY created_at ASC, id ASC
	`, userID, projectID)
}

func (s *PostgresStore) ListTasksByProject(ctx context.Context, projectID string) ([]Task, error) {
	return s.listTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE project_id=$1 ORDER BY created_at ASC, id ASC
	`, projectID)
}

func (s *PostgresStore) ListTasksBySection(ctx context.Context, sectionID string) ([]Task, error) {
	return s.listTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE section_id=$1 ORDER BY created_at ASC, id ASC
	`, sectionID)
}

func (s *PostgresStore) AttachLabel(ctx context.Context, taskID, labelID string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO task_labels (task_id, label_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, label_id) DO NOTHING
	`, taskID, labelID)
	if err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return nil
}

func (s *PostgresStore) DetachLabels(ctx context.Context, taskID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM task_labels WHERE task_id=$1`, taskID); err != nil {
		return fmt.Errorf("detach labels: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTaskLabels(ctx context.Context, taskID string) ([]Label, error) {
	return s.listLabels(ctx, `
		SELECT l.id, l.author_id, l.name, l.created_at, l.updated_at
		FROM labels l
		JOIN task_labels tl ON tl.label_id = l.id
		WHERE tl.task_id=$1
		ORDER BY l.name ASC, l.id ASC
	`, taskID)
}

func scanLabel(row rowScanner) (Label, error) {
	var item Label
	if err := row.Scan(&item.ID, &item.AuthorID, &item.Name, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Label{}, err
	}
	return item, nil
}

func (s *PostgresStore) listLabels(ctx context.Context, query string, args ...any) ([]Label, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		item, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateLabel(ctx context.Context, item Label) (Label, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO labels (id, author_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, item.ID, item.AuthorID, item.Name).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Label{}, mapInsertError("insert label", err)
	}
	return item, nil
}

func (s *PostgresStore) GetLabel(ctx context.Context, labelID string) (Label, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, author_id, name, created_at, updated_at FROM labels WHERE id=$1
	`, labelID)
	return scanLabel(row)
}

// FindLabelByName resolves a label name without restricting it to an author.
func (s *PostgresStore) FindLabelByName(ctx context.Context, name string) (Label, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, author_id, name, created_at, updated_at
		FROM labels
		WHERE name=$1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, name)
	return scanLabel(row)
}

func (s *PostgresStore) ListLabelsByAuthor(ctx context.Context, authorID string) ([]Label, error) {
	return s.listLabels(ctx, `
		SELECT id, author_id, name, created_at, updated_at
		FROM labels
		WHERE author_id=$1
		ORDER BY created_at ASC, id ASC
	`, authorID)
}

func (s *PostgresStore) UpdateLabel(ctx context.Context, labelID, name string) (Label, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE labels SET name=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING id, author_id, name, created_at, updated_at
	`, labelID, name)
	item, err := scanLabel(row)
	if err != nil {
		return Label{}, fmt.Errorf("update label: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, labelID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM labels WHERE id=$1`, labelID); err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}
