package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/face"
	"github.com/geocoder89/faceauth/internal/imaging"
	"github.com/geocoder89/faceauth/internal/observability"
)

type DenialReason string

const (
	DenialNeedsRequest    DenialReason = "needs_verification_request"
	DenialPendingApproval DenialReason = "pending_approval"
	DenialFaceMismatch    DenialReason = "face_mismatch"
)

// LoginResult is the tagged outcome of an admission attempt. Exactly one of
// Approved or Denial is meaningful; Pending is set only for the
// pending-approval denial.
type LoginResult struct {
	Approved bool
	Token    string
	User     user.User
	Denial   DenialReason
	Pending  *verification.Request
}

type AdmissionConfig struct {
	MatchThreshold  float64
	BlobFolder      string
	UpstreamTimeout time.Duration
}

// Admission decides whether a submitted face image earns a session: approved
// reference lookup, comparison against the threshold, and reference rotation
// on success.
type Admission struct {
	cfg        AdmissionConfig
	users      UserStore
	requests   VerificationStore
	blobs      blob.Store
	comparator face.Comparator
	tokens     TokenIssuer
	deletions  DeletionScheduler
	prom       *observability.Prom
	log        *slog.Logger
}

func NewAdmission(
	cfg AdmissionConfig,
	users UserStore,
	requests VerificationStore,
	blobs blob.Store,
	comparator face.Comparator,
	tokens TokenIssuer,
	deletions DeletionScheduler,
	prom *observability.Prom,
	log *slog.Logger,
) *Admission {
	return &Admission{
		cfg:        cfg,
		users:      users,
		requests:   requests,
		blobs:      blobs,
		comparator: comparator,
		tokens:     tokens,
		deletions:  deletions,
		prom:       prom,
		log:        log,
	}
}

// Login runs the admission decision for the user identified by email against
// the staged input image. The caller owns img and releases it on every path.
func (s *Admission) Login(ctx context.Context, email string, img *imaging.StagedImage) (LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return LoginResult{}, err
		}

		return LoginResult{}, upstream(err)
	}

	approved, err := s.requests.GetByUserAndStatus(ctx, u.ID, verification.StatusApproved)

	if err != nil {
		if !errors.Is(err, verification.ErrNotFound) {
			return LoginResult{}, upstream(err)
		}

		// no approved record; only the latest record tells apart "awaiting
		// approval" from "never submitted"
		latest, lErr := s.requests.GetLatestByUser(ctx, u.ID)

		switch {
		case lErr == nil && latest.Status == verification.StatusPending:
			return LoginResult{Denial: DenialPendingApproval, Pending: &latest}, nil

		case lErr == nil || errors.Is(lErr, verification.ErrNotFound):
			return LoginResult{Denial: DenialNeedsRequest}, nil

		default:
			return LoginResult{}, upstream(lErr)
		}
	}

	cctx, cancel := withTimeout(ctx, s.cfg.UpstreamTimeout)
	reference, err := s.blobs.Fetch(cctx, approved.ImageRef)
	cancel()

	if err != nil {
		s.log.Error("reference fetch failed", "user_id", u.ID, "ref", approved.ImageRef, "err", err)
		return LoginResult{}, upstream(err)
	}

	start := time.Now()
	cctx, cancel = withTimeout(ctx, s.cfg.UpstreamTimeout)
	result, err := s.comparator.Compare(cctx, img.Path, reference)
	cancel()

	if err != nil {
		if errors.Is(err, face.ErrNoFace) {
			s.observeCompare("no_face", start)
			return LoginResult{}, err
		}

		s.observeCompare("error", start)
		s.log.Error("comparison failed", "user_id", u.ID, "err", err)
		return LoginResult{}, upstream(err)
	}

	// strict less-than: a distance of exactly the threshold is a mismatch
	if result.Distance >= s.cfg.MatchThreshold {
		s.observeCompare("mismatch", start)
		s.log.Info("login denied, face mismatch", "user_id", u.ID, "distance", result.Distance)
		return LoginResult{Denial: DenialFaceMismatch}, nil
	}

	s.observeCompare("match", start)

	newRef, err := s.rotateReference(ctx, u, approved, img)

	if err != nil {
		return LoginResult{}, err
	}

	u.ImageRef = newRef
	u.IsNewUser = false

	token, err := s.tokens.Issue(u)

	if err != nil {
		s.log.Error("token issue failed", "user_id", u.ID, "err", err)
		return LoginResult{}, upstream(err)
	}

	s.log.Info("login approved", "user_id", u.ID, "distance", result.Distance)
	return LoginResult{Approved: true, Token: token, User: u}, nil
}

// rotateReference makes the just-matched probe the new trusted reference:
// upload, swap the refs on the approved record and the user row, then hand
// the old blob to the deletion queue. Approval status is untouched.
func (s *Admission) rotateReference(ctx context.Context, u user.User, approved verification.Request, img *imaging.StagedImage) (string, error) {
	cctx, cancel := withTimeout(ctx, s.cfg.UpstreamTimeout)
	newRef, err := s.blobs.Upload(cctx, img.Path, s.cfg.BlobFolder)
	cancel()

	if err != nil {
		s.log.Error("rotation upload failed", "user_id", u.ID, "err", err)
		return "", upstream(err)
	}

	if err := s.requests.UpdateImageRef(ctx, approved.ID, newRef); err != nil {
		s.deletions.Enqueue(newRef)
		return "", upstream(err)
	}

	if err := s.users.UpdateImageRef(ctx, u.ID, newRef); err != nil {
		return "", upstream(err)
	}

	s.deletions.Enqueue(approved.ImageRef)
	return newRef, nil
}

func (s *Admission) observeCompare(result string, start time.Time) {
	if s.prom != nil {
		s.prom.ObserveCompare(result, time.Since(start).Seconds())
	}
}
