package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/face"
)

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		withImage  bool
		setup      func(t *testing.T, e *env)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			fields:     map[string]string{"name": "Ada", "email": "ada@example.com", "mobile": "5550101"},
			withImage:  true,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing email",
			fields:     map[string]string{"name": "Ada", "mobile": "5550101"},
			withImage:  true,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "missing image",
			fields:     map[string]string{"name": "Ada", "email": "ada@example.com", "mobile": "5550101"},
			withImage:  false,
			wantStatus: http.StatusBadRequest,
			wantCode:   "missing_image",
		},
		{
			name:      "duplicate email",
			fields:    map[string]string{"name": "Ada", "email": "taken@example.com", "mobile": "5550101"},
			withImage: true,
			setup: func(t *testing.T, e *env) {
				e.seedUser(t, "taken@example.com")
			},
			wantStatus: http.StatusConflict,
			wantCode:   "email_taken",
		},
		{
			name:      "no face in image",
			fields:    map[string]string{"name": "Ada", "email": "ada@example.com", "mobile": "5550101"},
			withImage: true,
			setup: func(t *testing.T, e *env) {
				e.comparator.hasFace = false
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "no_face_detected",
		},
		{
			name:      "detector down",
			fields:    map[string]string{"name": "Ada", "email": "ada@example.com", "mobile": "5550101"},
			withImage: true,
			setup: func(t *testing.T, e *env) {
				e.comparator.detectErr = errors.New("connection refused")
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)

			if tt.setup != nil {
				tt.setup(t, e)
			}

			var image []byte

			if tt.withImage {
				image = jpegBytes(t)
			}

			w := e.post(t, "/register", tt.fields, image)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}

			body := decodeBody(t, w)

			if tt.wantCode != "" {
				errObj, _ := body["error"].(map[string]any)

				if errObj == nil || errObj["code"] != tt.wantCode {
					t.Fatalf("error code = %v, want %q", body["error"], tt.wantCode)
				}
			}

			if tt.wantStatus == http.StatusCreated {
				u, _ := body["user"].(map[string]any)

				if u == nil {
					t.Fatalf("missing user in body %s", w.Body.String())
				}

				if u["email"] != tt.fields["email"] {
					t.Errorf("user email = %v, want %q", u["email"], tt.fields["email"])
				}

				if u["imageRef"] == "" {
					t.Error("user has no reference image")
				}

				if u["isNewUser"] != true {
					t.Error("new user should be flagged isNewUser")
				}
			}
		})
	}
}

func TestLoginHandler_Approved(t *testing.T) {
	e := newEnv(t)
	u := e.seedUser(t, "ada@example.com")
	approved := e.seedRequest(t, u.ID, verification.StatusApproved)

	w := e.post(t, "/login", map[string]string{"email": u.Email}, jpegBytes(t))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)

	if body["token"] != "token-for-"+u.ID {
		t.Errorf("token = %v, want token-for-%s", body["token"], u.ID)
	}

	respUser, _ := body["user"].(map[string]any)

	if respUser == nil {
		t.Fatalf("missing user in body %s", w.Body.String())
	}

	if respUser["isNewUser"] != false {
		t.Error("returned user should no longer be flagged isNewUser")
	}

	// the matched probe replaces the reference and the old blob is queued
	if respUser["imageRef"] == approved.ImageRef {
		t.Error("reference image was not rotated")
	}

	found := false

	for _, ref := range e.deleted.all() {
		if ref == approved.ImageRef {
			found = true
		}
	}

	if !found {
		t.Errorf("superseded reference %q was not queued for deletion, got %v", approved.ImageRef, e.deleted.all())
	}
}

func TestLoginHandler_Denials(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, e *env) string
		wantStatus int
		wantBody   string
	}{
		{
			name: "unknown user",
			setup: func(t *testing.T, e *env) string {
				return "ghost@example.com"
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "no verification request",
			setup: func(t *testing.T, e *env) string {
				return e.seedUser(t, "ada@example.com").Email
			},
			wantStatus: http.StatusForbidden,
			wantBody:   "needs_verification_request",
		},
		{
			name: "request still pending",
			setup: func(t *testing.T, e *env) string {
				u := e.seedUser(t, "ada@example.com")
				e.seedRequest(t, u.ID, verification.StatusPending)
				return u.Email
			},
			wantStatus: http.StatusForbidden,
			wantBody:   `"status":"pending"`,
		},
		{
			name: "face mismatch",
			setup: func(t *testing.T, e *env) string {
				u := e.seedUser(t, "ada@example.com")
				e.seedRequest(t, u.ID, verification.StatusApproved)
				e.comparator.compareResult.Distance = 0.7
				return u.Email
			},
			wantStatus: http.StatusForbidden,
			wantBody:   "face_mismatch",
		},
		{
			name: "no face in probe",
			setup: func(t *testing.T, e *env) string {
				u := e.seedUser(t, "ada@example.com")
				e.seedRequest(t, u.ID, verification.StatusApproved)
				e.comparator.compareErr = face.ErrNoFace
				return u.Email
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "no_face_detected",
		},
		{
			name: "comparator down",
			setup: func(t *testing.T, e *env) string {
				u := e.seedUser(t, "ada@example.com")
				e.seedRequest(t, u.ID, verification.StatusApproved)
				e.comparator.compareErr = errors.New("connection refused")
				return u.Email
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			email := tt.setup(t, e)

			w := e.post(t, "/login", map[string]string{"email": email}, jpegBytes(t))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %q", w.Body.String(), tt.wantBody)
			}

			if w.Code != http.StatusOK && strings.Contains(w.Body.String(), "token") {
				t.Error("denied login must not carry a token")
			}
		})
	}
}

func TestLoginHandler_MismatchLeavesReferenceUntouched(t *testing.T) {
	e := newEnv(t)
	u := e.seedUser(t, "ada@example.com")
	approved := e.seedRequest(t, u.ID, verification.StatusApproved)
	e.comparator.compareResult.Distance = 0.9

	w := e.post(t, "/login", map[string]string{"email": u.Email}, jpegBytes(t))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	if got := len(e.deleted.all()); got != 0 {
		t.Errorf("deletion queue received %d refs on a mismatch", got)
	}

	cur, err := e.requests.GetByID(context.Background(), approved.ID)

	if err != nil {
		t.Fatalf("get request: %v", err)
	}

	if cur.ImageRef != approved.ImageRef {
		t.Errorf("reference rotated on mismatch: %q -> %q", approved.ImageRef, cur.ImageRef)
	}
}
