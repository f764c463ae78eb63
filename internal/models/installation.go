package models

import "time"

// Installation tracks one VCS-host grant of the platform application to an
// account, together with the latest minted access token. The token column holds
// ciphertext; expiry always comes from the host response.
type Installation struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	InstallationID int64      `gorm:"uniqueIndex;not null" json:"installation_id"`
	TokenEnc       string     `gorm:"size:1024" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	Suspended      bool       `gorm:"not null;default:false" json:"suspended"`
	UserID         uint       `gorm:"index" json:"user_id"`
	User           User       `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasValidToken reports whether the stored token is usable at least until the
// given reference time.
func (i Installation) HasValidToken(reference time.Time) bool {
	return i.TokenEnc != "" && i.TokenExpiresAt != nil && i.TokenExpiresAt.After(reference)
}
