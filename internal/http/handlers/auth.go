package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/face"
	"github.com/geocoder89/faceauth/internal/imaging"
	"github.com/geocoder89/faceauth/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	registration *service.Registration
	admission    *service.Admission
	staging      *imaging.Manager
}

func NewAuthHandler(registration *service.Registration, admission *service.Admission, staging *imaging.Manager) *AuthHandler {
	return &AuthHandler{
		registration: registration,
		admission:    admission,
		staging:      staging,
	}
}

type RegisterRequest struct {
	Name   string `form:"name" binding:"required"`
	Email  string `form:"email" binding:"required,email"`
	Mobile string `form:"mobile" binding:"required"`
}

type LoginRequest struct {
	Email string `form:"email" binding:"required,email"`
}

// Register enrolls a user with their first reference image. No verification
// request is opened here; that is a separate, explicit submission.
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !bindForm(ctx, &req) {
		return
	}

	img, ok := stageFormImage(ctx, h.staging)

	if !ok {
		return
	}

	defer h.staging.Release(img)

	u, err := h.registration.Register(ctx.Request.Context(), req.Name, req.Email, req.Mobile, img)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			RespondConflict(ctx, "email_taken", "A user with this email is already registered.", nil)
		case errors.Is(err, face.ErrNoFace):
			RespondBadRequest(ctx, "no_face_detected", "No face was detected in the image.", nil)
		case errors.Is(err, service.ErrUpstream):
			RespondUnavailable(ctx)
		default:
			RespondInternal(ctx, "Could not register user.")
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "User registered successfully",
		"user":    u,
	})
}

// Login runs the admission decision and answers with a tagged outcome:
// success with a token, pending with the open request, or a denial code.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !bindForm(ctx, &req) {
		return
	}

	img, ok := stageFormImage(ctx, h.staging)

	if !ok {
		return
	}

	defer h.staging.Release(img)

	res, err := h.admission.Login(ctx.Request.Context(), req.Email, img)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found.")
		case errors.Is(err, face.ErrNoFace):
			RespondBadRequest(ctx, "no_face_detected", "No face was detected in the image.", nil)
		case errors.Is(err, service.ErrUpstream):
			RespondUnavailable(ctx)
		default:
			RespondInternal(ctx, "Could not complete login.")
		}
		return
	}

	if res.Approved {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Login successful",
			"token":   res.Token,
			"user":    res.User,
		})
		return
	}

	switch res.Denial {
	case service.DenialPendingApproval:
		ctx.JSON(http.StatusForbidden, gin.H{
			"status":  "pending",
			"message": "Your verification request is awaiting approval.",
			"request": res.Pending,
		})

	case service.DenialNeedsRequest:
		RespondForbidden(ctx, "needs_verification_request", "No verification request on file. Please submit one.", nil)

	default:
		RespondForbidden(ctx, "face_mismatch", "Login failed. Face does not match.", nil)
	}
}
