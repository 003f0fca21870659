package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// WithTx runs fn against a store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Nested
// calls reuse the outer transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(*PostgresStore) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapInsertError(action string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", action, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func (s *PostgresStore) GetUserByIdentity(ctx context.Context, identity string) (User, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, identity, display_name, address, created_at, updated_at
		FROM users
		WHERE identity=$1
	`, identity)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, identity, display_name, address, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID)
	return scanUser(row)
}

func scanUser(row rowScanner) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Identity, &user.DisplayName, &user.Address, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users (id, identity, display_name, address)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, user.ID, user.Identity, user.DisplayName, user.Address).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, mapInsertError("insert user", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, userID, displayName, address string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE users
		SET display_name=$2, address=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, displayName, address)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSetting(ctx context.Context, setting Setting) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO settings (
			user_id, language, time_zone, weekly_beginning, next_week_interpretation,
			weekend_interpretation, theme, daily_task_number, holiday, karma, vacation_mode
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, setting.UserID, setting.Language, setting.TimeZone, setting.WeeklyBeginning, setting.NextWeekInterpretation,
		setting.WeekendInterpretation, setting.Theme, setting.DailyTaskNumber, setting.Holiday, setting.Karma, setting.VacationMode)
	if err != nil {
		return mapInsertError("insert setting", err)
	}
	return nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, userID string) (Setting, error) {
	var item Setting
	err := s.q.QueryRowContext(ctx, `
		SELECT user_id, language, time_zone, weekly_beginning, next_week_interpretation,
			weekend_interpretation, theme, daily_task_number, holiday, karma, vacation_mode
		FROM settings
		WHERE user_id=$1
	`, userID).Scan(
		&item.UserID,
		&item.Language,
		&item.TimeZone,
		&item.WeeklyBeginning,
		&item.NextWeekInterpretation,
		&item.WeekendInterpretation,
		&item.Theme,
		&item.DailyTaskNumber,
		&item.Holiday,
		&item.Karma,
		&item.VacationMode,
	)
	if err != nil {
		return Setting{}, err
	}
	return item, nil
}

// UpdateSetting overwrites the editable preferences. The karma total is only
// changed through AddKarmaTotal.
func (s *PostgresStore) UpdateSetting(ctx context.Context, setting Setting) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE settings
		SET language=$2, time_zone=$3, weekly_beginning=$4, next_week_interpretation=$5,
			weekend_interpretation=$6, theme=$7, daily_task_number=$8, holiday=$9, vacation_mode=$10
		WHERE user_id=$1
	`, setting.UserID, setting.Language, setting.TimeZone, setting.WeeklyBeginning, setting.NextWeekInterpretation,
		setting.WeekendInterpretation, setting.Theme, setting.DailyTaskNumber, setting.Holiday, setting.VacationMode)
	if err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddKarmaTotal(ctx context.Context, userID string, delta int) error {
	_, err := s.q.ExecContext(ctx, `UPDATE settings SET karma = karma + $2 WHERE user_id=$1`, userID, delta)
	if err != nil {
		return fmt.Errorf("update karma total: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateKarma(ctx context.Context, item Karma) (Karma, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO karma (id, user_id, activity, point)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, item.ID, item.UserID, item.Activity, item.Point).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Karma{}, mapInsertError("insert karma", err)
	}
	return item, nil
}

func (s *PostgresStore) GetKarma(ctx context.Context, karmaID string) (Karma, error) {
	var item Karma
	err := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, activity, point, created_at, updated_at
		FROM karma
		WHERE id=$1
	`, karmaID).Scan(&item.ID, &item.UserID, &item.Activity, &item.Point, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Karma{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListKarmaByUser(ctx context.Context, userID string) ([]Karma, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, activity, point, created_at, updated_at
		FROM karma
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list karma: %w", err)
	}
	defer rows.Close()

	items := make([]Karma, 0)
	for rows.Next() {
		var item Karma
		if err := rows.Scan(&item.ID, &item.UserID, &item.Activity, &item.Point, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan karma: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate karma: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListDefaultCategories(ctx context.Context) ([]DefaultCategory, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, color, icon, idx
		FROM default_categories
		ORDER BY idx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list default categories: %w", err)
	}
	defer rows.Close()

	items := make([]DefaultCategory, 0)
	for rows.Next() {
		var item DefaultCategory
		if err := rows.Scan(&item.ID, &item.Name, &item.Color, &item.Icon, &item.Index); err != nil {
			return nil, fmt.Errorf("scan default category: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate default categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDefaultCategory(ctx context.Context, item DefaultCategory) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO default_categories (id, name, color, icon, idx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Name, item.Color, item.Icon, item.Index)
	if err != nil {
		return fmt.Errorf("insert default category: %w", err)
	}
	return nil
}
