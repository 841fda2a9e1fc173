package pgrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND NOT (id = ANY($2)))`
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, email, pqStringArray(excluded)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
		INSERT INTO users (id, email, name, role, department, batch, student_id, photo_url,
			is_active, admin_claim_set, password_hash, created_at, updated_at)
		VALUES (:id, :email, :name, :role, :department, :batch, :student_id, :photo_url,
			:is_active, :admin_claim_set, :password_hash, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, usr); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, `SELECT * FROM users WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "getting user by ID")
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, `SELECT * FROM users WHERE email = $1`, email)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "getting user by email")
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	users := make([]user.User, 0)
	err := repo.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at`)
	return users, errors.Wrap(err, "querying users")
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	query := `
		UPDATE users SET name = $2, department = $3, batch = $4, photo_url = $5,
			is_active = COALESCE($6::boolean, is_active), updated_at = $7
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		usr.ID, usr.Name, usr.Department, usr.Batch, usr.PhotoURL, isActiveArg(isActive), usr.UpdatedAt)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) SetPassword(ctx context.Context, id string, hash []byte) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return errors.Wrap(err, "setting password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SetAdminClaimFlag(ctx context.Context, id string, set bool) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE users SET admin_claim_set = $2, updated_at = now() WHERE id = $1`, id, set)
	if err != nil {
		return errors.Wrap(err, "setting admin claim flag")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, pqStringArray(ids))
	return errors.Wrap(err, "deleting users")
}

func isActiveArg(isActive *bool) interface{} {
	if isActive == nil {
		return nil
	}
	return *isActive
}
