package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/imaging"
)

type LifecycleConfig struct {
	BlobFolder      string
	UpstreamTimeout time.Duration
}

// Lifecycle drives the verification-request state machine:
// none → pending → approved → pending again on reset.
type Lifecycle struct {
	cfg       LifecycleConfig
	users     UserStore
	requests  VerificationStore
	blobs     blob.Store
	deletions DeletionScheduler
	log       *slog.Logger
}

func NewLifecycle(cfg LifecycleConfig, users UserStore, requests VerificationStore, blobs blob.Store, deletions DeletionScheduler, log *slog.Logger) *Lifecycle {
	return &Lifecycle{
		cfg:       cfg,
		users:     users,
		requests:  requests,
		blobs:     blobs,
		deletions: deletions,
		log:       log,
	}
}

// Submit opens a pending request for the user. If one is already pending it
// returns that record alongside verification.ErrPendingExists so clients can
// show its state. The store's conditional insert closes the race between two
// concurrent submits.
func (s *Lifecycle) Submit(ctx context.Context, email string, img *imaging.StagedImage) (verification.Request, error) {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return verification.Request{}, err
		}

		return verification.Request{}, upstream(err)
	}

	if existing, err := s.requests.GetByUserAndStatus(ctx, u.ID, verification.StatusPending); err == nil {
		return existing, verification.ErrPendingExists
	}

	cctx, cancel := withTimeout(ctx, s.cfg.UpstreamTimeout)
	ref, err := s.blobs.Upload(cctx, img.Path, s.cfg.BlobFolder)
	cancel()

	if err != nil {
		s.log.Error("verification image upload failed", "user_id", u.ID, "err", err)
		return verification.Request{}, upstream(err)
	}

	req := verification.New(u.ID, ref)

	if err := s.requests.Create(ctx, req); err != nil {
		// the blob we just uploaded has no owning record
		s.deletions.Enqueue(ref)

		if errors.Is(err, verification.ErrPendingExists) {
			if existing, getErr := s.requests.GetByUserAndStatus(ctx, u.ID, verification.StatusPending); getErr == nil {
				return existing, verification.ErrPendingExists
			}

			return verification.Request{}, verification.ErrPendingExists
		}

		return verification.Request{}, upstream(err)
	}

	s.log.Info("verification request submitted", "user_id", u.ID, "request_id", req.ID)
	return req, nil
}

// Approve moves a pending request to approved. Invoked by the external
// approval collaborator through the admin surface.
func (s *Lifecycle) Approve(ctx context.Context, requestID string) (verification.Request, error) {
	req, err := s.requests.Approve(ctx, requestID)

	if err != nil {
		if errors.Is(err, verification.ErrNotFound) || errors.Is(err, verification.ErrNotPending) {
			return verification.Request{}, err
		}

		return verification.Request{}, upstream(err)
	}

	s.log.Info("verification request approved", "request_id", req.ID, "user_id", req.UserID)
	return req, nil
}

// Reset swaps an approved request back to pending with a fresh image. The
// superseded blob is handed to the deletion queue; the request row itself is
// never deleted.
func (s *Lifecycle) Reset(ctx context.Context, email string, img *imaging.StagedImage) (verification.Request, error) {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return verification.Request{}, err
		}

		return verification.Request{}, upstream(err)
	}

	cctx, cancel := withTimeout(ctx, s.cfg.UpstreamTimeout)
	ref, err := s.blobs.Upload(cctx, img.Path, s.cfg.BlobFolder)
	cancel()

	if err != nil {
		s.log.Error("reset image upload failed", "user_id", u.ID, "err", err)
		return verification.Request{}, upstream(err)
	}

	req, oldRef, err := s.requests.ResetToPending(ctx, u.ID, ref)

	if err != nil {
		s.deletions.Enqueue(ref)

		switch {
		case errors.Is(err, verification.ErrNotFound),
			errors.Is(err, verification.ErrPendingExists),
			errors.Is(err, verification.ErrNotApproved):
			return verification.Request{}, err
		default:
			return verification.Request{}, upstream(err)
		}
	}

	s.deletions.Enqueue(oldRef)
	s.log.Info("verification request reset to pending", "request_id", req.ID, "user_id", u.ID)
	return req, nil
}
