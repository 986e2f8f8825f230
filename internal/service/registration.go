package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/face"
	"github.com/geocoder89/faceauth/internal/imaging"
)

type RegistrationConfig struct {
	BlobFolder      string
	UpstreamTimeout time.Duration
}

// Registration handles first-time enrollment: uniqueness, face presence,
// reference upload, user creation. It does not open a verification request;
// enrollment and approval are separate, explicit steps.
type Registration struct {
	cfg        RegistrationConfig
	users      UserStore
	blobs      blob.Store
	comparator face.Comparator
	deletions  DeletionScheduler
	log        *slog.Logger
}

func NewRegistration(cfg RegistrationConfig, users UserStore, blobs blob.Store, comparator face.Comparator, deletions DeletionScheduler, log *slog.Logger) *Registration {
	return &Registration{
		cfg:        cfg,
		users:      users,
		blobs:      blobs,
		comparator: comparator,
		deletions:  deletions,
		log:        log,
	}
}

// Register enrolls a new user with img as their first reference image. The
// caller owns img and releases it on every path; this method never does.
func (s *Registration) Register(ctx context.Context, name, email, mobile string, img *imaging.StagedImage) (user.User, error) {
	_, err := s.users.GetByEmail(ctx, email)

	if err == nil {
		return user.User{}, user.ErrEmailTaken
	}

	if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, upstream(err)
	}

	cctx, cancel := withTimeout(ctx, s.cfg.UpstreamTimeout)
	hasFace, err := s.comparator.Detect(cctx, img.Path)
	cancel()

	if err != nil {
		s.log.Error("face detection failed", "email", email, "err", err)
		return user.User{}, upstream(err)
	}

	if !hasFace {
		return user.User{}, face.ErrNoFace
	}

	cctx, cancel = withTimeout(ctx, s.cfg.UpstreamTimeout)
	ref, err := s.blobs.Upload(cctx, img.Path, s.cfg.BlobFolder)
	cancel()

	if err != nil {
		s.log.Error("reference upload failed", "email", email, "err", err)
		return user.User{}, upstream(err)
	}

	u := user.New(user.CreateRequest{
		Name:     name,
		Email:    email,
		Mobile:   mobile,
		ImageRef: ref,
	})

	if err := s.users.Create(ctx, u); err != nil {
		// the uploaded blob has no owner now
		s.deletions.Enqueue(ref)

		// unique constraint catches a registration that raced past the check
		if errors.Is(err, user.ErrEmailTaken) {
			return user.User{}, user.ErrEmailTaken
		}

		return user.User{}, upstream(err)
	}

	s.log.Info("user registered", "user_id", u.ID, "email", email)
	return u, nil
}
