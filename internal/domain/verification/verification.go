package verification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// check to see if the status is a known constant

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound = errors.New("verification request not found")

	// a user may hold at most one pending request at a time
	ErrPendingExists = errors.New("pending verification request already exists")

	ErrNotPending  = errors.New("verification request is not pending")
	ErrNotApproved = errors.New("verification request is not approved")
)

// Request is the one-per-user approval record gating whether a reference
// image may be used for login. Records transition by status only and are
// never physically deleted; superseded blobs are cleaned up out of band.
type Request struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ImageRef  string    `json:"imageRef"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func New(userID, imageRef string) Request {
	now := time.Now().UTC()

	return Request{
		ID:        uuid.NewString(),
		UserID:    userID,
		ImageRef:  imageRef,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
