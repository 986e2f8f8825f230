package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/geocoder89/faceauth/internal/domain/user"
	"github.com/geocoder89/faceauth/internal/domain/verification"
	"github.com/geocoder89/faceauth/internal/imaging"
	"github.com/geocoder89/faceauth/internal/service"
	"github.com/gin-gonic/gin"
)

const adminSecretHeader = "X-Admin-Secret"

type VerificationsHandler struct {
	lifecycle   *service.Lifecycle
	staging     *imaging.Manager
	adminSecret string
}

func NewVerificationsHandler(lifecycle *service.Lifecycle, staging *imaging.Manager, adminSecret string) *VerificationsHandler {
	return &VerificationsHandler{
		lifecycle:   lifecycle,
		staging:     staging,
		adminSecret: adminSecret,
	}
}

type SubmitRequest struct {
	Email string `form:"email" binding:"required,email"`
}

func (h *VerificationsHandler) Submit(ctx *gin.Context) {
	var req SubmitRequest

	if !bindForm(ctx, &req) {
		return
	}

	img, ok := stageFormImage(ctx, h.staging)

	if !ok {
		return
	}

	defer h.staging.Release(img)

	vr, err := h.lifecycle.Submit(ctx.Request.Context(), req.Email, img)

	if err != nil {
		switch {
		case errors.Is(err, verification.ErrPendingExists):
			// surface the open request so the client can show its state
			RespondConflict(ctx, "pending_request_exists", "A verification request is already pending.", gin.H{"request": vr})
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found.")
		case errors.Is(err, service.ErrUpstream):
			RespondUnavailable(ctx)
		default:
			RespondInternal(ctx, "Could not submit verification request.")
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Verification request submitted",
		"request": vr,
	})
}

// Approve is the thin passthrough for the external approval collaborator,
// gated by a shared admin secret.
func (h *VerificationsHandler) Approve(ctx *gin.Context) {
	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(ctx.GetHeader(adminSecretHeader)), []byte(h.adminSecret)) != 1 {
		RespondUnAuthorized(ctx, "unauthorized", "Admin credentials required.")
		return
	}

	vr, err := h.lifecycle.Approve(ctx.Request.Context(), ctx.Param("id"))

	if err != nil {
		switch {
		case errors.Is(err, verification.ErrNotFound):
			RespondNotFound(ctx, "Verification request not found.")
		case errors.Is(err, verification.ErrNotPending):
			RespondConflict(ctx, "not_pending", "Only pending requests can be approved.", nil)
		default:
			RespondInternal(ctx, "Could not approve verification request.")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Verification request approved",
		"request": vr,
	})
}

func (h *VerificationsHandler) Reset(ctx *gin.Context) {
	var req SubmitRequest

	if !bindForm(ctx, &req) {
		return
	}

	img, ok := stageFormImage(ctx, h.staging)

	if !ok {
		return
	}

	defer h.staging.Release(img)

	vr, err := h.lifecycle.Reset(ctx.Request.Context(), req.Email, img)

	if err != nil {
		switch {
		case errors.Is(err, verification.ErrPendingExists):
			RespondConflict(ctx, "pending_request_exists", "Cannot reset while a request is pending approval.", nil)
		case errors.Is(err, verification.ErrNotApproved):
			RespondBadRequest(ctx, "not_approved", "Only an approved reference can be reset.", nil)
		case errors.Is(err, verification.ErrNotFound):
			RespondNotFound(ctx, "No verification request on file.")
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found.")
		case errors.Is(err, service.ErrUpstream):
			RespondUnavailable(ctx)
		default:
			RespondInternal(ctx, "Could not reset verification request.")
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Reference reset submitted for approval",
		"request": vr,
	})
}
