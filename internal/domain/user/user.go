package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
	Role   string `json:"role"`

	// denormalized profile fields carried into the login payload
	CompanyID   string `json:"companyId,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Designation string `json:"designation,omitempty"`
	EmpCode     string `json:"empCode,omitempty"`

	// ImageRef is the currently trusted reference image (opaque blob ref).
	ImageRef string `json:"imageRef"`

	IsNewUser             bool `json:"isNewUser"`
	RequiresPasswordReset bool `json:"requiresPasswordReset"`

	DailyWorkingHours  float64 `json:"dailyTotalWorkingHour"`
	WeeklyWorkingHours float64 `json:"weeklyTotalWorkingHour"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name     string
	Email    string
	Mobile   string
	ImageRef string
}

func New(req CreateRequest) User {
	now := time.Now().UTC()

	return User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Mobile:    req.Mobile,
		Role:      "user",
		ImageRef:  req.ImageRef,
		IsNewUser: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
