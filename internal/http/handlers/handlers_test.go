package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/face"
	"github.com/geocoder89/faceauth/internal/http/handlers"
	"github.com/geocoder89/faceauth/internal/imaging"
	"github.com/geocoder89/faceauth/internal/repo/memory"
	"github.com/geocoder89/faceauth/internal/service"
	"github.com/gin-gonic/gin"
)

const testAdminSecret = "test-admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeComparator struct {
	compareResult face.Result
	compareErr    error
	hasFace       bool
	detectErr     error
}

func (f *fakeComparator) Compare(_ context.Context, _ string, _ []byte) (face.Result, error) {
	if f.compareErr != nil {
		return face.Result{}, f.compareErr
	}

	return f.compareResult, nil
}

func (f *fakeComparator) Detect(_ context.Context, _ string) (bool, error) {
	if f.detectErr != nil {
		return false, f.detectErr
	}

	return f.hasFace, nil
}

type captureDeleter struct {
	mu   sync.Mutex
	refs []string
}

func (d *captureDeleter) Enqueue(ref string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs = append(d.refs, ref)
}

func (d *captureDeleter) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.refs...)
}

type staticIssuer struct{}

func (staticIssuer) Issue(u user.User) (string, error) {
	return "token-for-" + u.ID, nil
}

type env struct {
	users      *memory.UsersRepo
	requests   *memory.VerificationsRepo
	blobs      *blob.FSStore
	comparator *fakeComparator
	deleted    *captureDeleter
	router     *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	staging, err := imaging.NewManager(t.TempDir(), 500, log)

	if err != nil {
		t.Fatalf("staging manager: %v", err)
	}

	blobs, err := blob.NewFSStore(t.TempDir())

	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	e := &env{
		users:      memory.NewUsersRepo(),
		requests:   memory.NewVerificationsRepo(),
		blobs:      blobs,
		comparator: &fakeComparator{hasFace: true, compareResult: face.Result{Verified: true, Distance: 0.2}},
		deleted:    &captureDeleter{},
	}

	timeout := 2 * time.Second

	registration := service.NewRegistration(
		service.RegistrationConfig{BlobFolder: "faceauth", UpstreamTimeout: timeout},
		e.users, e.blobs, e.comparator, e.deleted, log,
	)
	admission := service.NewAdmission(
		service.AdmissionConfig{MatchThreshold: 0.4, BlobFolder: "faceauth", UpstreamTimeout: timeout},
		e.users, e.requests, e.blobs, e.comparator, staticIssuer{}, e.deleted, nil, log,
	)
	lifecycle := service.NewLifecycle(
		service.LifecycleConfig{BlobFolder: "faceauth", UpstreamTimeout: timeout},
		e.users, e.requests, e.blobs, e.deleted, log,
	)

	auth := handlers.NewAuthHandler(registration, admission, staging)
	verifs := handlers.NewVerificationsHandler(lifecycle, staging, testAdminSecret)

	r := gin.New()
	r.POST("/register", auth.Register)
	r.POST("/login", auth.Login)
	r.POST("/verifications", verifs.Submit)
	r.POST("/verifications/:id/approve", verifs.Approve)
	r.POST("/verifications/reset", verifs.Reset)

	e.router = r
	return e
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))

	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer

	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	return buf.Bytes()
}

// multipartForm builds a multipart body from form fields plus, when probe is
// non-nil, an "image" file part.
func multipartForm(t *testing.T, fields map[string]string, probe []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}

	if probe != nil {
		part, err := w.CreateFormFile("image", "probe.jpg")

		if err != nil {
			t.Fatalf("create file part: %v", err)
		}

		if _, err := part.Write(probe); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	return &buf, w.FormDataContentType()
}

func (e *env) post(t *testing.T, path string, fields map[string]string, probe []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartForm(t, fields, probe)
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any

	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}

	return out
}

func (e *env) seedUser(t *testing.T, email string) user.User {
	t.Helper()

	u := user.New(user.CreateRequest{Name: "Test User", Email: email, Mobile: "5550100"})

	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return u
}

func (e *env) seedRequest(t *testing.T, userID string, status verification.Status) verification.Request {
	t.Helper()

	ref := e.uploadBlob(t)
	req := verification.New(userID, ref)

	if err := e.requests.Create(context.Background(), req); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	if status == verification.StatusApproved {
		approved, err := e.requests.Approve(context.Background(), req.ID)

		if err != nil {
			t.Fatalf("approve seeded request: %v", err)
		}

		return approved
	}

	return req
}

func (e *env) uploadBlob(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ref.jpg")

	if err := os.WriteFile(path, jpegBytes(t), 0o600); err != nil {
		t.Fatalf("write reference file: %v", err)
	}

	ref, err := e.blobs.Upload(context.Background(), path, "faceauth")

	if err != nil {
		t.Fatalf("upload reference: %v", err)
	}

	return ref
}
