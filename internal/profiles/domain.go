package profiles

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a user has no profile row yet.
var ErrNotFound = errors.New("profiles: not found")

// Profile is one row of the profiles relation. Optional columns are empty
// strings when unset.
type Profile struct {
	ID        string
	UserID    string
	FullName  string
	Phone     string
	AvatarURL string
	Bio       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateInput is the editable subset of a profile. All fields are written
// together.
type UpdateInput struct {
	FullName string `validate:"required,max=120"`
	Phone    string `validate:"omitempty,phone"`
	Bio      string `validate:"max=500"`
}
