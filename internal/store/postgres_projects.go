package store

import (
	"context"
	"fmt"
)

const projectColumns = `p.id, p.creator_id, p.name, p.color, p.icon, p.idx, p.comment, p.is_comp_public, p.deleted, p.created_at, p.updated_at`

func scanProject(row rowScanner) (Project, error) {
	var item Project
	err := row.Scan(
		&item.ID,
		&item.CreatorID,
		&item.Name,
		&item.Color,
		&item.Icon,
		&item.Index,
		&item.Comment,
		&item.IsCompPublic,
		&item.Deleted,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, item Project) (Project, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO projects (id, creator_id, name, color, icon, idx, comment, is_comp_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, item.ID, item.CreatorID, item.Name, item.Color, item.Icon, item.Index, item.Comment, item.IsCompPublic).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, mapInsertError("insert project", err)
	}
	return item, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id=$1`, projectID)
	return scanProject(row)
}

// FindProjectByNameAndCreator returns the creator's oldest project with the
// given name.
func (s *PostgresStore) FindProjectByNameAndCreator(ctx context.Context, name, creatorID string) (Project, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.name=$1 AND p.creator_id=$2
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT 1
	`, name, creatorID)
	return scanProject(row)
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, color=$3, icon=$4, comment=$5, is_comp_public=$6, deleted=$7, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Color, item.Icon, item.Comment, item.IsCompPublic, item.Deleted)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextProjectIndex(ctx context.Context, creatorID string) (int, error) {
	var next int
	err := s.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(idx), 0) + 1 FROM projects WHERE creator_id=$1`, creatorID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next project index: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) listProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListProjectsByCreator(ctx context.Context, creatorID string) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.creator_id=$1
		ORDER BY p.idx ASC, p.created_at ASC
	`, creatorID)
}

// ListProjectsByMember orders by the member's own manual ordering.
func (s *PostgresStore) ListProjectsByMember(ctx context.Context, userID string) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id=$1
		ORDER BY pm.idx ASC, p.created_at ASC
	`, userID)
}

// AddProjectMember appends the project to the end of the user's ordering.
// Adding an existing member is a no-op.
func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, idx)
		SELECT $1, $2, COALESCE(MAX(idx), 0) + 1 FROM project_members WHERE user_id=$2
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("insert project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT user_id FROM project_members WHERE project_id=$1 ORDER BY user_id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		members = append(members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return members, nil
}

func (s *PostgresStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)
	`, projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project member: %w", err)
	}
	return exists, nil
}

func projectSetTable(set ProjectSet) (string, error) {
	switch set {
	case ProjectFavorites, ProjectArchives:
		return string(set), nil
	default:
		return "", fmt.Errorf("unknown project set %q", set)
	}
}

// SetProjectFlag adds or removes userID from one of the per-viewer sets of a
// project. Both directions are idempotent.
func (s *PostgresStore) SetProjectFlag(ctx context.Context, set ProjectSet, projectID, userID string, member bool) error {
	table, err := projectSetTable(set)
	if err != nil {
		return err
	}
	if member {
		_, err = s.q.ExecContext(ctx, `
			INSERT INTO `+table+` (project_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (project_id, user_id) DO NOTHING
		`, projectID, userID)
		if err != nil {
			return fmt.Errorf("add %s: %w", table, err)
		}
		return nil
	}
	if _, err = s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id=$1 AND user_id=$2`, projectID, userID); err != nil {
		return fmt.Errorf("remove %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) HasProjectFlag(ctx context.Context, set ProjectSet, projectID, userID string) (bool, error) {
	table, err := projectSetTable(set)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM `+table+` WHERE project_id=$1 AND user_id=$2)
	`, projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return exists, nil
}

const sectionColumns = `s.id, s.project_id, s.name, s.deleted, s.archived, s.created_at, p.name`

func scanSection(row rowScanner) (Section, error) {
	var item Section
	if err := row.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Deleted, &item.Archived, &item.CreatedAt, &item.ProjectName); err != nil {
		return Section{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateSection(ctx context.Context, item Section) (Section, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO sections (id, project_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, (SELECT name FROM projects WHERE id=$2)
	`, item.ID, item.ProjectID, item.Name).Scan(&item.CreatedAt, &item.ProjectName)
	if err != nil {
		return Section{}, mapInsertError("insert section", err)
	}
	return item, nil
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID string) (Section, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s
		JOIN projects p ON p.id = s.project_id
		WHERE s.id=$1
	`, sectionID)
	return scanSection(row)
}

// FindSectionByName looks a section up by name across every project.
func (s *PostgresStore) FindSectionByName(ctx context.Context, name string) (Section, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s
		JOIN projects p ON p.id = s.project_id
		WHERE s.name=$1
		ORDER BY s.created_at ASC, s.id ASC
		LIMIT 1
	`, name)
	return scanSection(row)
}

func (s *PostgresStore) listSections(ctx context.Context, query string, args ...any) ([]Section, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		item, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListSectionsByProject(ctx context.Context, projectID string) ([]Section, error) {
	return s.listSections(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s
		JOIN projects p ON p.id = s.project_id
		WHERE s.project_id=$1
		ORDER BY s.created_at ASC, s.id ASC
	`, projectID)
}

func (s *PostgresStore) ListSectionsForMember(ctx context.Context, userID string) ([]Section, error) {
	return s.listSections(ctx, `
		SELECT `+sectionColumns+`
		FROM sections s
		JOIN projects p ON p.id = s.project_id
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id=$1
		ORDER BY pm.idx ASC, s.created_at ASC, s.id ASC
	`, userID)
}

func (s *PostgresStore) UpdateSection(ctx context.Context, item Section) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE sections SET name=$2, deleted=$3, archived=$4 WHERE id=$1
	`, item.ID, item.Name, item.Deleted, item.Archived)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSection(ctx context.Context, sectionID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM sections WHERE id=$1`, sectionID); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}
