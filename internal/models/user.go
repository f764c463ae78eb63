package models

import "time"

// VCS account kinds for organization users.
const (
	AccountKindPersonal     = "personal"
	AccountKindOrganization = "organization"
)

// User represents an organization user who authors assessments. The VCS OAuth
// token is stored in ciphertext only; callers decrypt it immediately before use.
type User struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	Email          string       `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name           string       `gorm:"size:255" json:"name"`
	GithubLogin    string       `gorm:"size:255" json:"github_login"`
	AccountKind    string       `gorm:"size:16;not null;default:personal" json:"account_kind"`
	OrgName        string       `gorm:"size:255" json:"org_name"`
	GithubTokenEnc string       `gorm:"size:1024" json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Assessments    []Assessment `json:"-"`
}

// RepoOwner returns the account the user's repositories are created under.
func (u User) RepoOwner() string {
	if u.AccountKind == AccountKindOrganization && u.OrgName != "" {
		return u.OrgName
	}
	return u.GithubLogin
}
