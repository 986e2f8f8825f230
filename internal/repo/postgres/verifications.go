package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationsRepo persists verification requests. The one-pending-per-user
// invariant is closed at the store with a partial unique index:
//
//	CREATE UNIQUE INDEX verification_requests_user_pending_uniq
//	ON verification_requests (user_id) WHERE status = 'pending';
//
// Two concurrent submits can both pass the in-process check; only one insert
// survives, the other maps to verification.ErrPendingExists.
type VerificationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewVerificationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *VerificationsRepo {
	return &VerificationsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *VerificationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const requestColumns = `id, user_id, image_ref, status, created_at, updated_at`

func scanRequest(row pgx.Row) (verification.Request, error) {
	var req verification.Request

	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.ImageRef,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return verification.Request{}, verification.ErrNotFound
		}

		return verification.Request{}, err
	}
	return req, nil
}

func (r *VerificationsRepo) Create(ctx context.Context, req verification.Request) error {
	err := r.observe("verifications.create", func() error {
		_, e := r.pool.Exec(ctx, `
		INSERT INTO verification_requests (id, user_id, image_ref, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, req.ID, req.UserID, req.ImageRef, req.Status, req.CreatedAt, req.UpdatedAt)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return verification.ErrPendingExists
		}

		return err
	}
	return nil
}

func (r *VerificationsRepo) GetByID(ctx context.Context, id string) (verification.Request, error) {
	var req verification.Request
	var err error

	err = r.observe("verifications.get_by_id", func() error {
		req, err = scanRequest(r.pool.QueryRow(
			ctx,
			`SELECT `+requestColumns+` FROM verification_requests WHERE id = $1`,
			id,
		))
		return err
	})

	return req, err
}

func (r *VerificationsRepo) GetByUserAndStatus(ctx context.Context, userID string, status verification.Status) (verification.Request, error) {
	var req verification.Request
	var err error

	err = r.observe("verifications.get_by_user_status", func() error {
		req, err = scanRequest(r.pool.QueryRow(
			ctx,
			`SELECT `+requestColumns+`
		 FROM verification_requests
		 WHERE user_id = $1 AND status = $2
		 ORDER BY updated_at DESC
		 LIMIT 1`,
			userID, status,
		))
		return err
	})

	return req, err
}

// GetLatestByUser returns the most recently touched request regardless of
// status, so callers can distinguish "no request at all" from "wrong state".
func (r *VerificationsRepo) GetLatestByUser(ctx context.Context, userID string) (verification.Request, error) {
	var req verification.Request
	var err error

	err = r.observe("verifications.get_latest_by_user", func() error {
		req, err = scanRequest(r.pool.QueryRow(
			ctx,
			`SELECT `+requestColumns+`
		 FROM verification_requests
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
			userID,
		))
		return err
	})

	return req, err
}

func (r *VerificationsRepo) Approve(ctx context.Context, id string) (verification.Request, error) {
	var req verification.Request
	var err error

	err = r.observe("verifications.approve", func() error {
		req, err = scanRequest(r.pool.QueryRow(ctx, `
		UPDATE verification_requests
		SET status = 'approved',
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
			id,
		))
		return err
	})

	if errors.Is(err, verification.ErrNotFound) {
		// distinguish absent from already-approved
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return verification.Request{}, verification.ErrNotPending
		}

		return verification.Request{}, verification.ErrNotFound
	}

	return req, err
}

// ResetToPending moves the user's approved request back to pending with a
// fresh image ref, returning the superseded ref for out-of-band deletion.
// Row lock keeps the read-then-update atomic against concurrent resets.
func (r *VerificationsRepo) ResetToPending(ctx context.Context, userID, newImageRef string) (req verification.Request, oldImageRef string, err error) {
	err = r.observe("verifications.reset_to_pending", func() error {
		tx, e := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if e != nil {
			return e
		}

		defer func() { _ = tx.Rollback(ctx) }()

		cur, e := scanRequest(tx.QueryRow(
			ctx,
			`SELECT `+requestColumns+`
		 FROM verification_requests
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1
		 FOR UPDATE`,
			userID,
		))

		if e != nil {
			return e
		}

		if cur.Status == verification.StatusPending {
			return verification.ErrPendingExists
		}

		if cur.Status != verification.StatusApproved {
			return verification.ErrNotApproved
		}

		oldImageRef = cur.ImageRef

		req, e = scanRequest(tx.QueryRow(ctx, `
		UPDATE verification_requests
		SET status = 'pending',
		    image_ref = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+requestColumns,
			cur.ID, newImageRef,
		))

		if e != nil {
			return e
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return verification.Request{}, "", err
	}
	return req, oldImageRef, nil
}

// UpdateImageRef swaps the reference blob on an approved request after a
// successful login rotation. Status is left untouched.
func (r *VerificationsRepo) UpdateImageRef(ctx context.Context, id, imageRef string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("verifications.update_image_ref", func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE verification_requests
		SET image_ref = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, imageRef)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return verification.ErrNotFound
	}
	return nil
}
