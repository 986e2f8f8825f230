package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/repo/memory"
	"github.com/geocoder89/faceauth/internal/service"
)

type lifecycleEnv struct {
	eng      *service.Lifecycle
	users    *memory.UsersRepo
	requests *memory.VerificationsRepo
	blobs    *fakeBlob
	deleter  *captureDeleter
}

func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()

	env := &lifecycleEnv{
		users:    memory.NewUsersRepo(),
		requests: memory.NewVerificationsRepo(),
		blobs:    newFakeBlob(),
		deleter:  &captureDeleter{},
	}

	env.eng = service.NewLifecycle(
		service.LifecycleConfig{BlobFolder: "face_recognition"},
		env.users, env.requests, env.blobs, env.deleter, testLogger(),
	)

	u := user.New(user.CreateRequest{Name: "Ann", Email: "ann@x.com", Mobile: "555", ImageRef: "face_recognition/initial.jpg"})

	if err := env.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return env
}

func TestSubmit_CreatesPendingRequest(t *testing.T) {
	env := newLifecycleEnv(t)

	req, err := env.eng.Submit(context.Background(), "ann@x.com", staged())

	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if req.Status != verification.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	if req.ImageRef == "" {
		t.Fatal("expected an uploaded image ref")
	}
}

func TestSubmit_SecondSubmitReturnsExisting(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	first, err := env.eng.Submit(ctx, "ann@x.com", staged())

	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := env.eng.Submit(ctx, "ann@x.com", staged())

	if !errors.Is(err, verification.ErrPendingExists) {
		t.Fatalf("expected ErrPendingExists, got %v", err)
	}

	if second.ID != first.ID {
		t.Fatal("second submit should surface the existing pending record")
	}

	if env.blobs.uploads != 1 {
		t.Fatalf("second submit must not upload, got %d uploads", env.blobs.uploads)
	}
}

func TestSubmit_UnknownUser(t *testing.T) {
	env := newLifecycleEnv(t)

	_, err := env.eng.Submit(context.Background(), "nobody@x.com", staged())

	if !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprove_PendingBecomesApproved(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	req, err := env.eng.Submit(ctx, "ann@x.com", staged())

	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	approved, err := env.eng.Approve(ctx, req.ID)

	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if approved.Status != verification.StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	// approving twice is a state error, not a no-op
	if _, err := env.eng.Approve(ctx, req.ID); !errors.Is(err, verification.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestApprove_UnknownRequest(t *testing.T) {
	env := newLifecycleEnv(t)

	_, err := env.eng.Approve(context.Background(), "missing-id")

	if !errors.Is(err, verification.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReset_ApprovedGoesBackToPending(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	req, err := env.eng.Submit(ctx, "ann@x.com", staged())

	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	oldRef := req.ImageRef

	if _, err := env.eng.Approve(ctx, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	reset, err := env.eng.Reset(ctx, "ann@x.com", staged())

	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if reset.ID != req.ID {
		t.Fatal("reset must transition the same record, not create a new one")
	}

	if reset.Status != verification.StatusPending {
		t.Fatalf("expected pending after reset, got %s", reset.Status)
	}

	if reset.ImageRef == oldRef {
		t.Fatal("reset must replace the image ref")
	}

	enqueued := env.deleter.enqueued()

	if len(enqueued) != 1 || enqueued[0] != oldRef {
		t.Fatalf("superseded ref should be scheduled for deletion, got %v", enqueued)
	}
}

func TestReset_ConflictsWhilePending(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	if _, err := env.eng.Submit(ctx, "ann@x.com", staged()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := env.eng.Reset(ctx, "ann@x.com", staged())

	if !errors.Is(err, verification.ErrPendingExists) {
		t.Fatalf("expected ErrPendingExists, got %v", err)
	}

	// the just-uploaded blob is orphaned and must be cleaned up
	if len(env.deleter.enqueued()) != 1 {
		t.Fatalf("orphaned upload should be scheduled for deletion, got %v", env.deleter.enqueued())
	}
}

func TestReset_NotFoundWithoutAnyRequest(t *testing.T) {
	env := newLifecycleEnv(t)

	_, err := env.eng.Reset(context.Background(), "ann@x.com", staged())

	if !errors.Is(err, verification.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitAndReset_UserLookupOutageIsUpstream(t *testing.T) {
	env := newLifecycleEnv(t)

	flaky := &flakyUsers{
		UsersRepo:     env.users,
		getByEmailErr: errors.New("store unreachable"),
	}

	eng := service.NewLifecycle(
		service.LifecycleConfig{BlobFolder: "face_recognition"},
		flaky, env.requests, env.blobs, env.deleter, testLogger(),
	)

	if _, err := eng.Submit(context.Background(), "ann@x.com", staged()); !errors.Is(err, service.ErrUpstream) {
		t.Fatalf("submit: expected ErrUpstream, got %v", err)
	}

	if _, err := eng.Reset(context.Background(), "ann@x.com", staged()); !errors.Is(err, service.ErrUpstream) {
		t.Fatalf("reset: expected ErrUpstream, got %v", err)
	}
}

func TestSubmit_OnePendingUnderConcurrency(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()

	const workers = 16

	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			_, err := env.eng.Submit(ctx, "ann@x.com", staged())
			errs <- err
		}()
	}

	created := 0

	for i := 0; i < workers; i++ {
		if err := <-errs; err == nil {
			created++
		} else if !errors.Is(err, verification.ErrPendingExists) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if created != 1 {
		t.Fatalf("exactly one submit may create a pending request, got %d", created)
	}
}
