package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, name, email, mobile, role,
	company_id, company_name, designation, emp_code,
	image_ref, is_new_user, requires_password_reset,
	daily_working_hours, weekly_working_hours,
	created_at, updated_at`

func (r *UsersRepo) scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Mobile,
		&u.Role,
		&u.CompanyID,
		&u.CompanyName,
		&u.Designation,
		&u.EmpCode,
		&u.ImageRef,
		&u.IsNewUser,
		&u.RequiresPasswordReset,
		&u.DailyWorkingHours,
		&u.WeeklyWorkingHours,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_email", func() error {
		u, err = r.scanUser(r.pool.QueryRow(
			ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			email,
		))
		return err
	})

	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	err := r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, mobile, role,
			company_id, company_name, designation, emp_code,
			image_ref, is_new_user, requires_password_reset,
			daily_working_hours, weekly_working_hours,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
			u.ID, u.Name, u.Email, u.Mobile, u.Role,
			u.CompanyID, u.CompanyName, u.Designation, u.EmpCode,
			u.ImageRef, u.IsNewUser, u.RequiresPasswordReset,
			u.DailyWorkingHours, u.WeeklyWorkingHours,
			u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "users_email_uniq" {
			return user.ErrEmailTaken
		}

		return err
	}
	return nil
}

// UpdateImageRef rotates the stored reference image. Identity fields are
// never touched on this path.
func (r *UsersRepo) UpdateImageRef(ctx context.Context, id, imageRef string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("users.update_image_ref", func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE users
		SET image_ref = $2,
		    is_new_user = FALSE,
		    updated_at = NOW()
		WHERE id = $1
	`, id, imageRef)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}
