// Package sqlxrepos holds the PostgreSQL repositories.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dossier/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, created_at, updated_at`

func newUUID() string { return uuid.NewString() }

type userRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Username  null.String    `db:"username"`
	Email     string         `db:"email"`
	IsActive  bool           `db:"is_active"`
	Roles     pq.StringArray `db:"roles"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:        row.ID,
		Name:      row.Name,
		Username:  row.Username.String,
		Email:     row.Email,
		IsActive:  row.IsActive,
		Roles:     []string(row.Roles),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string) error {
	var row struct {
		Username null.String `db:"username"`
		Email    string      `db:"email"`
	}
	q := `SELECT username, email FROM users WHERE username = NULLIF($1, '') OR email = $2 LIMIT 1`
	err := repo.db.GetContext(ctx, &row, q, username, email)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking uniqueness")
	case username != "" && row.Username.String == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (_ user.User, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.User{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := `INSERT INTO users (id, name, username, email, is_active, roles, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive, pq.Array(usr.Roles), usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	for _, wardID := range usr.Wards {
		q = `INSERT INTO guardians (parent_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err = tx.ExecContext(ctx, q, usr.ID, wardID); err != nil {
			return user.User{}, errors.Wrap(err, "linking ward")
		}
	}
	if err = tx.Commit(); err != nil {
		return user.User{}, errors.Wrap(err, "committing user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	usr := row.toUser()

	q := `SELECT student_id FROM guardians WHERE parent_id = $1 ORDER BY student_id`
	if err := repo.db.SelectContext(ctx, &usr.Wards, q, id); err != nil {
		return user.User{}, errors.Wrap(err, "selecting wards")
	}
	return usr, nil
}

// GetGuardians does not load the Wards of the returned parents.
func (repo *userRepository) GetGuardians(ctx context.Context, studentID string) ([]user.User, error) {
	var rows []userRow
	q := `SELECT u.id, u.name, u.username, u.email, u.is_active, u.roles, u.created_at, u.updated_at
		FROM users u JOIN guardians g ON g.parent_id = u.id
		WHERE g.student_id = $1 ORDER BY u.name`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting guardians")
	}
	guardians := make([]user.User, 0, len(rows))
	for _, row := range rows {
		guardians = append(guardians, row.toUser())
	}
	return guardians, nil
}
