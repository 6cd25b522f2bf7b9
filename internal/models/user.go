package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DateLayout renders calendar dates in public payloads.
const DateLayout = "2006-01-02"

// User is a registered account. OTP fields are either both set or both nil.
type User struct {
	BaseModel

	Email       string          `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	DateOfBirth *datatypes.Date `json:"date_of_birth,omitempty"`

	PasswordHash *string `gorm:"size:255" json:"-"`
	// Password is a plaintext value hashed into PasswordHash by the credential store on save.
	Password string `gorm:"-" json:"-"`

	GoogleID   *string `gorm:"size:255;uniqueIndex" json:"-"`
	IsVerified bool    `gorm:"not null;default:false" json:"is_verified"`

	OTPCode      *string    `gorm:"size:6" json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	Notes []Note `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPendingOTP reports whether a code is outstanding.
func (u *User) HasPendingOTP() bool {
	return u.OTPCode != nil && u.OTPExpiresAt != nil
}

// SetOTP stores a code together with its expiry.
func (u *User) SetOTP(code string, expiresAt time.Time) {
	expires := expiresAt.UTC()
	u.OTPCode = &code
	u.OTPExpiresAt = &expires
}

// ClearOTP removes any outstanding code.
func (u *User) ClearOTP() {
	u.OTPCode = nil
	u.OTPExpiresAt = nil
}

// PublicUser is the client-facing projection of a User. It never carries
// credentials or OTP state.
type PublicUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// Public returns the client-facing projection.
func (u *User) Public() PublicUser {
	public := PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
	if u.DateOfBirth != nil {
		public.DateOfBirth = time.Time(*u.DateOfBirth).Format(DateLayout)
	}
	return public
}
