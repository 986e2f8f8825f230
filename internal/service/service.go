package service

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/domain/verification"
)

// ErrUpstream marks a collaborator (media host, comparator, store) failure.
// Handlers surface it as a generic service-unavailable; the detail stays in
// the logs.
var ErrUpstream = errors.New("upstream service unavailable")

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) error
	UpdateImageRef(ctx context.Context, id, imageRef string) error
}

type VerificationStore interface {
	Create(ctx context.Context, req verification.Request) error
	GetByUserAndStatus(ctx context.Context, userID string, status verification.Status) (verification.Request, error)
	GetLatestByUser(ctx context.Context, userID string) (verification.Request, error)
	Approve(ctx context.Context, id string) (verification.Request, error)
	ResetToPending(ctx context.Context, userID, newImageRef string) (verification.Request, string, error)
	UpdateImageRef(ctx context.Context, id, imageRef string) error
}

// DeletionScheduler receives superseded blob refs. Implementations must not
// block.
type DeletionScheduler interface {
	Enqueue(ref string)
}

type TokenIssuer interface {
	Issue(u user.User) (string, error)
}

func upstream(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrUpstream, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
