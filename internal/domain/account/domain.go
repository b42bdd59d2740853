package account

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicate         = errors.New("username or email already taken")
	ErrStaleRefreshToken = errors.New("stored refresh token changed")
	ErrInvalid           = errors.New("invalid account record")
)

// Account is the full persisted record, secret fields included. It never
// crosses the service boundary as-is; handlers work with View.
type Account struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string
	PasswordHash  string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// View is the sanitized projection of an Account: no password hash, no
// refresh token.
type View struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (a *Account) Sanitized() *View {
	return &View{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Validate enforces the full-record rules applied on ordinary saves.
// Partial secret-field updates go through SaveOptions.SkipValidation.
func (a *Account) Validate() error {
	switch {
	case strings.TrimSpace(a.Username) == "":
		return errors.Join(ErrInvalid, errors.New("username is required"))
	case strings.TrimSpace(a.Email) == "":
		return errors.Join(ErrInvalid, errors.New("email is required"))
	case strings.TrimSpace(a.FullName) == "":
		return errors.Join(ErrInvalid, errors.New("full name is required"))
	case a.AvatarURL == "":
		return errors.Join(ErrInvalid, errors.New("avatar is required"))
	case a.PasswordHash == "":
		return errors.Join(ErrInvalid, errors.New("password hash is required"))
	}
	return nil
}
